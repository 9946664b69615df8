package marketdata

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"mention-lab/internal/domain"
	"mention-lab/internal/ratelimit"
)

const (
	bonkMint = "DezXAZ8z7PnrnRJjz3wXBoRgixCa6xjnB7YaB1pPB263"
	wifMint  = "EKpQGSJtjMFqKZ9KQanSqYXRcF8fBopzLHYxdM65zcjm"
	poolAddr = "8sLbNZoA1cfnvMJLPfp98ZLAnFSYCFApfJKMbiXNLwxj"
)

// instantGate never sleeps, so retry paths run without delay.
func instantGate() *ratelimit.Gate {
	return ratelimit.NewGate(ratelimit.Config{MinSpacing: 0, MaxAttempts: 3},
		ratelimit.WithSleeper(func(context.Context, time.Duration) error { return nil }))
}

func TestDecodePairs_Variants(t *testing.T) {
	tests := []struct {
		name string
		body string
		want int
	}{
		{"array", `[{"pairAddress":"a"},{"pairAddress":"b"}]`, 2},
		{"pairs envelope", `{"schemaVersion":"1.0.0","pairs":[{"pairAddress":"a"}]}`, 1},
		{"single pair", `{"pair":{"pairAddress":"a"}}`, 1},
		{"null pairs", `{"pairs":null}`, 0},
		{"null body", `null`, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pairs, err := decodePairs([]byte(tt.body))
			if err != nil {
				t.Fatalf("decodePairs: %v", err)
			}
			if len(pairs) != tt.want {
				t.Errorf("expected %d pairs, got %d", tt.want, len(pairs))
			}
		})
	}
}

func TestDexScreener_LookupTickers(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/latest/dex/search" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Query().Get("q") {
		case "bonk":
			fmt.Fprintf(w, `{"pairs":[
				{"chainId":"solana","pairAddress":"p1","baseToken":{"address":"%s","symbol":"Bonk","name":"Bonk"},"liquidity":{"usd":5000000},"volume":{"h24":900000}},
				{"chainId":"solana","pairAddress":"p2","baseToken":{"address":"fake","symbol":"BONK","name":"Fake"},"liquidity":{"usd":10}},
				{"chainId":"ethereum","pairAddress":"p3","baseToken":{"address":"0xabc","symbol":"BONK"},"liquidity":{"usd":99999999}}
			]}`, bonkMint)
		case "wif":
			fmt.Fprintf(w, `{"pairs":[{"chainId":"solana","pairAddress":"p4","baseToken":{"address":"%s","symbol":"WIF","name":"dogwifhat"},"liquidity":{"usd":"800"}}]}`, wifMint)
		default:
			fmt.Fprint(w, `{"pairs":[]}`)
		}
	}))
	defer server.Close()

	ds := NewDexScreener(server.URL, WithGate(instantGate()))
	got, err := ds.LookupTickers(context.Background(), []string{"bonk", "wif", "nothing", "bonk"})
	if err != nil {
		t.Fatalf("LookupTickers: %v", err)
	}

	if len(got) != 2 {
		t.Fatalf("expected 2 matches, got %d: %+v", len(got), got)
	}
	if got["bonk"].Address != bonkMint {
		t.Errorf("bonk resolved to %s", got["bonk"].Address)
	}
	if got["bonk"].Confidence != 75 {
		t.Errorf("expected bonk confidence 75, got %d", got["bonk"].Confidence)
	}
	if got["wif"].Confidence != 50 {
		t.Errorf("expected wif confidence 50, got %d", got["wif"].Confidence)
	}
}

func TestDexScreener_LookupNames(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `[{"chainId":"solana","pairAddress":"p4","baseToken":{"address":"%s","symbol":"WIF","name":"dog  wif hat"},"liquidity":{"usd":20000},"boosts":{"active":2}}]`, wifMint)
	}))
	defer server.Close()

	ds := NewDexScreener(server.URL, WithGate(instantGate()))
	got, err := ds.LookupNames(context.Background(), []string{"dog wif hat"})
	if err != nil {
		t.Fatalf("LookupNames: %v", err)
	}
	m, ok := got["dog wif hat"]
	if !ok {
		t.Fatal("expected name match")
	}
	if m.Address != wifMint || m.Symbol != "WIF" {
		t.Errorf("unexpected match %+v", m)
	}
	if m.Confidence != 80 {
		t.Errorf("expected confidence 80, got %d", m.Confidence)
	}
}

func TestDexScreener_LookupTokensBatched(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if !strings.HasPrefix(r.URL.Path, "/latest/dex/tokens/") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		fmt.Fprintf(w, `{"pairs":[
			{"chainId":"solana","baseToken":{"address":"%s","symbol":"Bonk","name":"Bonk"},"quoteToken":{"address":"So11111111111111111111111111111111111111112","symbol":"SOL"}},
			{"chainId":"solana","baseToken":{"address":"%s","symbol":"Bonk2","name":"dup"}}
		]}`, bonkMint, bonkMint)
	}))
	defer server.Close()

	ds := NewDexScreener(server.URL, WithGate(instantGate()))
	got, err := ds.LookupTokens(context.Background(), []string{bonkMint, wifMint})
	if err != nil {
		t.Fatalf("LookupTokens: %v", err)
	}
	if calls.Load() != 1 {
		t.Errorf("expected 1 batched call, got %d", calls.Load())
	}
	if got[bonkMint].Symbol != "Bonk" {
		t.Errorf("expected first pair to win, got %+v", got[bonkMint])
	}
	if _, ok := got[wifMint]; ok {
		t.Error("wif should be absent")
	}
	if _, ok := got["So11111111111111111111111111111111111111112"]; ok {
		t.Error("unrequested quote mint should be absent")
	}
}

func TestDexScreener_LookupPairs(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/latest/dex/pairs/solana/"+poolAddr {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		fmt.Fprintf(w, `{"pair":{"chainId":"solana","dexId":"raydium","pairAddress":"%s","baseToken":{"address":"%s"},"quoteToken":{"address":"So11111111111111111111111111111111111111112"},"liquidity":{"usd":1234.5}}}`, poolAddr, bonkMint)
	}))
	defer server.Close()

	ds := NewDexScreener(server.URL, WithGate(instantGate()))
	got, err := ds.LookupPairs(context.Background(), []string{poolAddr})
	if err != nil {
		t.Fatalf("LookupPairs: %v", err)
	}
	p := got[poolAddr]
	if p.BaseMint != bonkMint || p.DexID != "raydium" || p.LiquidityUSD != 1234.5 {
		t.Errorf("unexpected pair %+v", p)
	}
}

func TestDexScreener_ThrottleRetried(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) <= 2 {
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		fmt.Fprintf(w, `{"pairs":[{"chainId":"solana","baseToken":{"address":"%s","symbol":"Bonk","name":"Bonk"}}]}`, bonkMint)
	}))
	defer server.Close()

	ds := NewDexScreener(server.URL, WithGate(instantGate()))
	got, err := ds.LookupTokens(context.Background(), []string{bonkMint})
	if err != nil {
		t.Fatalf("LookupTokens: %v", err)
	}
	if calls.Load() != 3 {
		t.Errorf("expected 3 calls, got %d", calls.Load())
	}
	if got[bonkMint].Symbol != "Bonk" {
		t.Errorf("unexpected result %+v", got)
	}
}

func TestDexScreener_ThrottleExhausted(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	ds := NewDexScreener(server.URL, WithGate(instantGate()))
	_, err := ds.LookupPairs(context.Background(), []string{poolAddr})
	if !ratelimit.IsThrottled(err) {
		t.Fatalf("expected throttled error, got %v", err)
	}
	// 3 guarded attempts plus the final unguarded one
	if calls.Load() != 4 {
		t.Errorf("expected 4 calls, got %d", calls.Load())
	}
}

func TestDexScreener_SearchServerErrorReported(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("q") {
		case "bonk":
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprintf(w, `{"pairs":[{"chainId":"solana","pairAddress":"p1","baseToken":{"address":"%s","symbol":"BONK","name":"Bonk"}}]}`, bonkMint)
		case "gone":
			w.WriteHeader(http.StatusNotFound)
		default:
			w.WriteHeader(http.StatusInternalServerError)
		}
	}))
	defer server.Close()

	ds := NewDexScreener(server.URL, WithGate(instantGate()))
	got, err := ds.LookupTickers(context.Background(), []string{"bonk", "foo", "gone"})

	var lookupErr *LookupError
	if !errors.As(err, &lookupErr) {
		t.Fatalf("expected *LookupError, got %v", err)
	}
	if len(lookupErr.Failed) != 1 {
		t.Fatalf("expected 1 failed query, got %v", lookupErr.Failed)
	}
	if _, ok := lookupErr.Failed["foo"]; !ok {
		t.Errorf("expected foo to be reported, got %v", lookupErr.Failed)
	}
	if got["bonk"].Address != bonkMint {
		t.Errorf("expected bonk match next to the error, got %+v", got)
	}
	if _, ok := got["gone"]; ok {
		t.Error("not-found query must be a plain miss")
	}
}

func TestDexScreener_SearchThrottleExhausted(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	ds := NewDexScreener(server.URL, WithGate(instantGate()))
	got, err := ds.LookupNames(context.Background(), []string{"dogwifhat"})
	if !ratelimit.IsThrottled(err) {
		t.Fatalf("expected throttled error through LookupError, got %v", err)
	}
	if len(got) != 0 {
		t.Errorf("expected no matches, got %v", got)
	}
}

func TestGeckoTerminal_Pools(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/networks/solana/tokens/"+bonkMint+"/pools" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		fmt.Fprintf(w, `{"data":[
			{"id":"solana_small","attributes":{"address":"small","reserve_in_usd":"100.5"},"relationships":{"dex":{"data":{"id":"orca"}},"base_token":{"data":{"id":"solana_%s"}}}},
			{"id":"solana_big","attributes":{"reserve_in_usd":"250000"},"relationships":{"dex":{"data":{"id":"raydium"}},"base_token":{"data":{"id":"solana_%s"}}}}
		]}`, bonkMint, bonkMint)
	}))
	defer server.Close()

	gt := NewGeckoTerminal(server.URL, WithGate(instantGate()))
	pools, err := gt.Pools(context.Background(), bonkMint)
	if err != nil {
		t.Fatalf("Pools: %v", err)
	}
	if len(pools) != 2 {
		t.Fatalf("expected 2 pools, got %d", len(pools))
	}
	if pools[0].Address != "big" || pools[0].DexID != "raydium" || pools[0].LiquidityUSD != 250000 {
		t.Errorf("unexpected first pool %+v", pools[0])
	}
	if pools[1].Address != "small" || pools[1].BaseMint != bonkMint {
		t.Errorf("unexpected second pool %+v", pools[1])
	}
}

func TestGeckoTerminal_PoolsNotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	gt := NewGeckoTerminal(server.URL, WithGate(instantGate()))
	pools, err := gt.Pools(context.Background(), bonkMint)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(pools) != 0 {
		t.Errorf("expected no pools, got %d", len(pools))
	}
}

func TestGeckoTerminal_Candles(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/networks/solana/pools/"+poolAddr+"/ohlcv/minute" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		q := r.URL.Query()
		if q.Get("aggregate") != "15" || q.Get("limit") != "1000" || q.Get("before_timestamp") != "1700003600" {
			t.Errorf("unexpected query %s", r.URL.RawQuery)
		}
		// upstream returns newest first
		fmt.Fprint(w, `{"data":{"attributes":{"ohlcv_list":[
			[1700002700, 1.3, 1.5, 1.2, 1.4, 10],
			[1700001800, 1.1, 1.35, 1.0, 1.3, 20],
			[1700000900, 1.0, 1.1, 0.9, 1.1, 30],
			[1700000000, 1.0]
		]}}}`)
	}))
	defer server.Close()

	gt := NewGeckoTerminal(server.URL, WithGate(instantGate()))
	candles, err := gt.Candles(context.Background(), CandleQuery{
		Pool:      poolAddr,
		Timeframe: domain.TimeframeMinute,
		Aggregate: 15,
		Before:    1700003600,
		Limit:     5000,
	})
	if err != nil {
		t.Fatalf("Candles: %v", err)
	}
	if len(candles) != 3 {
		t.Fatalf("expected 3 candles, got %d", len(candles))
	}
	if candles[0].Timestamp != 1700000900 || candles[2].Timestamp != 1700002700 {
		t.Errorf("candles not ascending: %+v", candles)
	}
	if candles[1].High != 1.35 || candles[1].Pool != poolAddr || candles[1].Timeframe != domain.TimeframeMinute {
		t.Errorf("unexpected candle %+v", candles[1])
	}
}

func TestGeckoTerminal_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	gt := NewGeckoTerminal(server.URL, WithGate(instantGate()))
	_, err := gt.Candles(context.Background(), CandleQuery{Pool: poolAddr})
	if err == nil {
		t.Fatal("expected error")
	}
	if ratelimit.IsThrottled(err) || errors.Is(err, ErrNotFound) {
		t.Errorf("unexpected error class: %v", err)
	}
}
