package services

import "testing"

func TestProducerShareCents(t *testing.T) {
	policy := SettlementPolicy{PlatformFeePercent: 15, FallbackProgressPercent: 50}

	tests := []struct {
		name       string
		priceCents int64
		want       int64
	}{
		{"standard price", 10000, 8500},
		{"rounds down", 999, 849}, // 999*85/100 = 849.15
		{"zero price", 0, 0},
		{"one cent", 1, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := policy.ProducerShareCents(tt.priceCents); got != tt.want {
				t.Errorf("ProducerShareCents(%d) = %d, want %d", tt.priceCents, got, tt.want)
			}
		})
	}
}

func TestSplitFull(t *testing.T) {
	policy := SettlementPolicy{PlatformFeePercent: 15}

	payout, fee := policy.SplitFull(10000)
	if payout != 8500 || fee != 1500 {
		t.Errorf("SplitFull(10000) = (%d, %d), want (8500, 1500)", payout, fee)
	}

	// Fee absorbs the rounding remainder so the split always sums to price.
	payout, fee = policy.SplitFull(999)
	if payout+fee != 999 {
		t.Errorf("SplitFull(999) = (%d, %d), parts must sum to 999", payout, fee)
	}
	if payout != 849 || fee != 150 {
		t.Errorf("SplitFull(999) = (%d, %d), want (849, 150)", payout, fee)
	}
}

func TestProratedPayout(t *testing.T) {
	policy := SettlementPolicy{PlatformFeePercent: 15, FallbackProgressPercent: 50}

	tests := []struct {
		name       string
		priceCents int64
		delivered  int
		purchased  int
		want       int64
	}{
		{"half delivered", 10000, 2, 4, 4250},
		{"one of three", 10000, 1, 3, 2833}, // 8500/3 floored
		{"all delivered", 10000, 4, 4, 8500},
		{"over delivered caps at share", 10000, 5, 4, 8500},
		{"nothing delivered", 10000, 0, 4, 0},
		{"negative delivered", 10000, -1, 4, 0},
		{"no revisions purchased uses fallback", 10000, 0, 0, 4250},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := policy.ProratedPayout(tt.priceCents, tt.delivered, tt.purchased)
			if got != tt.want {
				t.Errorf("ProratedPayout(%d, %d, %d) = %d, want %d",
					tt.priceCents, tt.delivered, tt.purchased, got, tt.want)
			}
		})
	}
}

func TestRefundAmount(t *testing.T) {
	tests := []struct {
		priceCents int64
		percent    int
		want       int64
	}{
		{10000, 100, 10000},
		{10000, 40, 4000},
		{10000, 0, 0},
		{999, 33, 329}, // 999*33/100 floored
	}
	for _, tt := range tests {
		if got := RefundAmount(tt.priceCents, tt.percent); got != tt.want {
			t.Errorf("RefundAmount(%d, %d) = %d, want %d", tt.priceCents, tt.percent, got, tt.want)
		}
	}
}

func TestRecommendedRefundPercent(t *testing.T) {
	tests := []struct {
		name        string
		hasProducer bool
		delivered   int
		purchased   int
		want        int
	}{
		{"no producer yet", false, 0, 4, 100},
		{"nothing delivered", true, 0, 4, 100},
		{"one of four delivered", true, 1, 4, 75},
		{"three of four delivered", true, 3, 4, 25},
		{"all delivered", true, 4, 4, 0},
		{"one of three rounds", true, 1, 3, 67}, // 100 - round(33.3)
		{"no revisions purchased", true, 1, 0, 100},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := RecommendedRefundPercent(tt.hasProducer, tt.delivered, tt.purchased)
			if got != tt.want {
				t.Errorf("RecommendedRefundPercent(%v, %d, %d) = %d, want %d",
					tt.hasProducer, tt.delivered, tt.purchased, got, tt.want)
			}
		})
	}
}
