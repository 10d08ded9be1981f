package storage

import "testing"

func TestPartitionFilterEscapesQuotes(t *testing.T) {
	tests := []struct {
		name      string
		partition string
		want      string
	}{
		{name: "plain", partition: "L1", want: "PartitionKey eq 'L1'"},
		{name: "embedded quote", partition: "o'brien", want: "PartitionKey eq 'o''brien'"},
		{name: "quote injection", partition: "x' or PartitionKey ne '", want: "PartitionKey eq 'x'' or PartitionKey ne '''"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := partitionFilter(tc.partition); got != tc.want {
				t.Fatalf("filter = %q, want %q", got, tc.want)
			}
		})
	}
}
