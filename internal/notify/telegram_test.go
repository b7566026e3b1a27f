package notify

import (
	"strings"
	"testing"

	"memewars/internal/battle"
	"memewars/internal/models"
	"memewars/internal/settlement"
)

func TestFormatSettlement(t *testing.T) {
	fa, fb := int64(15_000_000_000), int64(12_000_000_000)
	b := models.Battle{
		ID: 7, TokenA: "BONK", TokenB: "WIF",
		InitialPriceA: 10_000_000_000, InitialPriceB: 10_000_000_000,
		FinalPriceA: &fa, FinalPriceB: &fb,
		TotalStakedA: 1000, TotalStakedB: 1000,
	}
	res := settlement.Result{Winner: battle.TeamA, GrowthA: 5000, GrowthB: 2000, TotalYield: 2}

	got := FormatSettlement(b, res)
	for _, want := range []string{"Battle #7 settled", "BONK: 100 → 150 (+50.00%)", "Winner: BONK", "yield 2 (fee 0)"} {
		if !strings.Contains(got, want) {
			t.Fatalf("message missing %q:\n%s", want, got)
		}
	}
}

func TestGrowth(t *testing.T) {
	cases := map[int64]string{0: "0.00%", 5000: "+50.00%", -2500: "-25.00%", 1: "+0.01%"}
	for bps, want := range cases {
		if got := Growth(bps); got != want {
			t.Fatalf("Growth(%d)=%q want=%q", bps, got, want)
		}
	}
}
