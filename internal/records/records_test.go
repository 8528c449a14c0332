package records

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRecordID(t *testing.T) {
	tests := []struct {
		name string
		rec  Record
		want int64
	}{
		{"int64", Record{"Id": int64(7)}, 7},
		{"int", Record{"Id": 8}, 8},
		{"float64 from JSON", Record{"Id": float64(9)}, 9},
		{"json.Number", Record{"Id": json.Number("10")}, 10},
		{"missing", Record{}, 0},
		{"wrong type", Record{"Id": "11"}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.rec.ID())
		})
	}
}

func TestMutateResponseSplit(t *testing.T) {
	resp := &MutateResponse{Success: true, Results: []Result{
		{Success: true, Data: Record{"Id": int64(1)}},
		{Success: false, Message: "title_c is required"},
		{Success: true, Data: Record{"Id": int64(2)}},
	}}

	ok, failed := resp.Split()

	assert.Len(t, ok, 2)
	assert.Equal(t, int64(2), ok[1].Data.ID())
	assert.Equal(t, []Result{{Message: "title_c is required"}}, failed)
}

func TestAnyOf(t *testing.T) {
	g := AnyOf(Contains("title_c", "css"), Contains("Tags", "css"))

	assert.Equal(t, "OR", g.Operator)
	assert.Len(t, g.SubGroups, 2)
	assert.Equal(t, "Tags", g.SubGroups[1].Conditions[0].FieldName)
	assert.True(t, g.SubGroups[0].Conditions[0].Include)
}

func TestFailure(t *testing.T) {
	assert.Equal(t, "fetch failed", Failure("fetch", ""))
	assert.Equal(t, "quota exceeded", Failure("fetch", "quota exceeded"))
}
