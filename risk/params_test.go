package risk

import (
	"errors"
	"math/big"
	"testing"

	"cngnlend/wad"
)

func TestValidateAcceptsSaneParams(t *testing.T) {
	if err := testParams().Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestValidateRejectsInvertedFactors(t *testing.T) {
	params := testParams()
	params.CollateralFactor = wadFrac(90, 100)
	if err := params.Validate(); !errors.Is(err, ErrBadConfig) {
		t.Fatalf("expected ErrBadConfig, got %v", err)
	}
}

func TestValidateRejectsZeroPrice(t *testing.T) {
	params := testParams()
	params.EthPrice = big.NewInt(0)
	if err := params.Validate(); !errors.Is(err, ErrBadConfig) {
		t.Fatalf("expected ErrBadConfig, got %v", err)
	}
}

func TestValidateRejectsThresholdAboveScale(t *testing.T) {
	params := testParams()
	params.LiquidationThreshold = new(big.Int).Add(wad.Scale, big.NewInt(1))
	if err := params.Validate(); !errors.Is(err, ErrBadConfig) {
		t.Fatalf("expected ErrBadConfig, got %v", err)
	}
}

func TestCloneIsDeep(t *testing.T) {
	params := testParams()
	clone := params.Clone()
	clone.EthPrice.SetInt64(1)
	if params.EthPrice.Cmp(wadInt(2000)) != 0 {
		t.Fatal("clone shares price storage with the original")
	}
}

func TestDeriveDebtFreePosition(t *testing.T) {
	// 1 ETH, no debt: borrowing power 1600 cNGN and the infinite-health
	// sentinel.
	raw := RawPosition{
		CollateralETH:   wadInt(1),
		CollateralValue: wadInt(2000),
		DebtBalance:     big.NewInt(0),
	}
	pos := Derive(raw, testParams())
	if pos.AvailableToBorrow.Cmp(wadInt(1600)) != 0 {
		t.Fatalf("availableToBorrow = %s, want 1600", pos.AvailableToBorrow)
	}
	if pos.HealthFactor.Cmp(MaxHealthFactor) != 0 {
		t.Fatalf("healthFactor = %s, want sentinel", pos.HealthFactor)
	}
	if pos.Liquidatable {
		t.Fatal("debt-free position flagged liquidatable")
	}
	if pos.CurrentLTV != 0 {
		t.Fatalf("LTV = %v, want 0", pos.CurrentLTV)
	}
}

func TestDeriveLiquidatablePosition(t *testing.T) {
	params := testParams()
	params.EthPrice = wadInt(1000)
	raw := RawPosition{
		CollateralETH:   wadFrac(5, 10),
		CollateralValue: wadInt(500),
		DebtBalance:     wadInt(1000),
	}
	pos := Derive(raw, params)
	if !pos.Liquidatable {
		t.Fatalf("expected liquidatable, hf = %s", pos.HealthFactor)
	}
	if BandFor(pos.HealthFactor) != HealthLiquidatable {
		t.Fatal("band should be liquidatable")
	}
}

func TestDerivePrefersOnChainHealthFactor(t *testing.T) {
	raw := RawPosition{
		CollateralETH: wadInt(1),
		DebtBalance:   wadInt(100),
		HealthFactor:  wadInt(3),
	}
	pos := Derive(raw, testParams())
	if pos.HealthFactor.Cmp(wadInt(3)) != 0 {
		t.Fatalf("healthFactor = %s, want the contract reading", pos.HealthFactor)
	}
}

func TestBandCutoffs(t *testing.T) {
	cases := []struct {
		hf   *big.Int
		want HealthBand
	}{
		{wadFrac(16, 10), HealthHealthy},
		{wadFrac(15, 10), HealthHealthy},
		{wadFrac(13, 10), HealthWarning},
		{wadFrac(11, 10), HealthDanger},
		{wadFrac(9, 10), HealthLiquidatable},
	}
	for _, tc := range cases {
		if got := BandFor(tc.hf); got != tc.want {
			t.Fatalf("BandFor(%s) = %d, want %d", tc.hf, got, tc.want)
		}
	}
}

func TestFormatHealthFactor(t *testing.T) {
	if got := FormatHealthFactor(MaxHealthFactor); got != "∞" {
		t.Fatalf("sentinel rendered as %q", got)
	}
	if got := FormatHealthFactor(wadFrac(425, 1000)); got != "0.42" {
		t.Fatalf("got %q, want 0.42", got)
	}
	if got := FormatHealthFactor(wadFrac(15, 10)); got != "1.50" {
		t.Fatalf("got %q, want 1.50", got)
	}
}
