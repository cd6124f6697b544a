package orders

import "testing"

func TestParseProtectionTag(t *testing.T) {
	tests := []struct {
		name string
		tag  string
		want Protection
	}{
		{
			name: "both legs",
			tag:  "SL:1.0800;TP:1.0950",
			want: Protection{StopPrice: 1.0800, HasStop: true, LimitPrice: 1.0950, HasLimit: true},
		},
		{
			name: "stop only",
			tag:  "SL:1.0800",
			want: Protection{StopPrice: 1.0800, HasStop: true},
		},
		{
			name: "take profit only with spaces",
			tag:  " TP : 1.0950 ",
			want: Protection{LimitPrice: 1.0950, HasLimit: true},
		},
		{
			name: "lower case keys",
			tag:  "sl:95.5;tp:110",
			want: Protection{StopPrice: 95.5, HasStop: true, LimitPrice: 110, HasLimit: true},
		},
		{
			name: "empty tag",
			tag:  "",
			want: Protection{},
		},
		{
			name: "unrelated tag text ignored",
			tag:  "strategy-alpha;note:hold",
			want: Protection{},
		},
		{
			name: "bad number ignored",
			tag:  "SL:abc;TP:1.10",
			want: Protection{LimitPrice: 1.10, HasLimit: true},
		},
		{
			name: "non-positive price ignored",
			tag:  "SL:-5;TP:0",
			want: Protection{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ParseProtectionTag(tt.tag); got != tt.want {
				t.Fatalf("ParseProtectionTag(%q)=%+v, expected %+v", tt.tag, got, tt.want)
			}
		})
	}
}

func TestDistancesAreSymmetric(t *testing.T) {
	prot := Protection{StopPrice: 1.0800, HasStop: true, LimitPrice: 1.0950, HasLimit: true}

	// A buy entering above the stop and a sell entering below it produce
	// the same absolute distances.
	buyStop, buyLimit := prot.Distances(1.0850)
	sellStop, sellLimit := Protection{StopPrice: 1.0900, HasStop: true, LimitPrice: 1.0750, HasLimit: true}.Distances(1.0850)

	if buyStop < 0.00499 || buyStop > 0.00501 {
		t.Fatalf("buy stop distance=%v", buyStop)
	}
	if buyLimit < 0.00999 || buyLimit > 0.01001 {
		t.Fatalf("buy limit distance=%v", buyLimit)
	}
	if sellStop < 0.00499 || sellStop > 0.00501 || sellLimit < 0.00999 || sellLimit > 0.01001 {
		t.Fatalf("sell distances=%v/%v", sellStop, sellLimit)
	}
}

func TestDistancesWithoutLegs(t *testing.T) {
	stop, limit := Protection{}.Distances(100)
	if stop != 0 || limit != 0 {
		t.Fatalf("distances=%v/%v", stop, limit)
	}
}
