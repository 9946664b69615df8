package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"

	"mention-lab/internal/domain"
	"mention-lab/internal/pricing"
)

// objectPutter is the subset of *s3.Client the archiver needs.
type objectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// SeriesArchiver implements pricing.SeriesArchiver. Each call writes one
// object at {prefix}/{token}/{yyyy-mm-dd}/{uuid}.json.
type SeriesArchiver struct {
	client objectPutter
	bucket string
	prefix string
	now    func() time.Time
}

var _ pricing.SeriesArchiver = (*SeriesArchiver)(nil)

// NewSeriesArchiver creates an archiver writing under prefix.
func NewSeriesArchiver(c *Client, prefix string) *SeriesArchiver {
	return &SeriesArchiver{client: c.s3, bucket: c.bucket, prefix: prefix, now: time.Now}
}

// archivedSeries is the JSON body of one archive object.
type archivedSeries struct {
	Token      string          `json:"token"`
	ArchivedAt int64           `json:"archived_at"`
	Candles    []archiveCandle `json:"candles"`
}

type archiveCandle struct {
	Pool      string  `json:"pool"`
	Timeframe string  `json:"timeframe"`
	Timestamp int64   `json:"ts"`
	Open      float64 `json:"o"`
	High      float64 `json:"h"`
	Low       float64 `json:"l"`
	Close     float64 `json:"c"`
	Volume    float64 `json:"v"`
}

// Archive uploads the merged series of token.
func (a *SeriesArchiver) Archive(ctx context.Context, token string, candles []domain.PriceCandle) error {
	now := a.now().UTC()
	body := archivedSeries{
		Token:      token,
		ArchivedAt: now.Unix(),
		Candles:    make([]archiveCandle, len(candles)),
	}
	for i, c := range candles {
		body.Candles[i] = archiveCandle{
			Pool:      c.Pool,
			Timeframe: string(c.Timeframe),
			Timestamp: c.Timestamp,
			Open:      c.Open,
			High:      c.High,
			Low:       c.Low,
			Close:     c.Close,
			Volume:    c.Volume,
		}
	}

	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("s3blob: encode series %s: %w", token, err)
	}

	key := a.objectKey(token, now)
	_, err = a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("s3blob: put object %s: %w", key, err)
	}
	return nil
}

func (a *SeriesArchiver) objectKey(token string, now time.Time) string {
	return path.Join(a.prefix, token, now.Format("2006-01-02"), uuid.NewString()+".json")
}
