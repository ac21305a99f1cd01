package validate_test

import (
	"fmt"
	"math"
	"testing"

	"github.com/velocitylabs/vcollect/validate"
)

func makeRecords(n int, header []string) []validate.Record {
	records := make([]validate.Record, n)
	for i := range records {
		rec := make(validate.Record, len(header))
		for _, name := range header {
			rec[name] = fmt.Sprintf("v%d", i)
		}
		records[i] = rec
	}
	return records
}

func TestScoreRecords_RecordVolume(t *testing.T) {
	header := []string{"A", "B", "C"}
	cases := []struct {
		records int
		want    float64
	}{
		{1, 10},
		{2, 20},
		{3, 20},
		{10, 30},
		{50, 30},
	}
	for _, tc := range cases {
		b := validate.ScoreRecords("show ip arp", makeRecords(tc.records, header), header)
		if math.Abs(b.Records-tc.want) > 0.01 {
			t.Errorf("%d records: expected %.2f, got %.2f", tc.records, tc.want, b.Records)
		}
	}

	// 3..9 records interpolate between 20 and 30.
	b := validate.ScoreRecords("show ip arp", makeRecords(7, header), header)
	want := 20 + 4*(10.0/7.0)
	if math.Abs(b.Records-want) > 0.01 {
		t.Errorf("7 records: expected %.3f, got %.3f", want, b.Records)
	}
}

func TestScoreRecords_VersionCommandWantsOneRecord(t *testing.T) {
	header := []string{"VERSION", "HOSTNAME", "UPTIME"}

	one := validate.ScoreRecords("show version", makeRecords(1, header), header)
	if one.Records != 30 {
		t.Errorf("single version record should max out: %.1f", one.Records)
	}

	three := validate.ScoreRecords("show version", makeRecords(3, header), header)
	if three.Records != 5 {
		t.Errorf("3 version records: expected 5, got %.1f", three.Records)
	}

	many := validate.ScoreRecords("show version", makeRecords(8, header), header)
	if many.Records != 0 {
		t.Errorf("excess version records should floor at 0, got %.1f", many.Records)
	}
}

func TestScoreRecords_FieldRichness(t *testing.T) {
	cases := []struct {
		fields int
		want   float64
	}{
		{1, 5},
		{2, 10},
		{3, 10},
		{5, 10 + 2*(10.0/3.0)},
		{6, 20},
		{8, 25},
		{10, 30},
		{14, 30},
	}
	for _, tc := range cases {
		header := make([]string, tc.fields)
		for i := range header {
			header[i] = fmt.Sprintf("F%d", i)
		}
		b := validate.ScoreRecords("show ip arp", makeRecords(4, header), header)
		if math.Abs(b.Fields-tc.want) > 0.01 {
			t.Errorf("%d fields: expected %.3f, got %.3f", tc.fields, tc.want, b.Fields)
		}
	}
}

func TestScoreRecords_PopulationAndConsistency(t *testing.T) {
	header := []string{"A", "B"}

	full := validate.ScoreRecords("show ip arp", makeRecords(4, header), header)
	if full.Population != 25 {
		t.Errorf("fully populated records: expected 25, got %.1f", full.Population)
	}
	if full.Consistency != 15 {
		t.Errorf("consistent records: expected 15, got %.1f", full.Consistency)
	}

	// B filled in half the records: population 75%, consistency 50%.
	mixed := makeRecords(4, header)
	mixed[1]["B"] = ""
	mixed[3]["B"] = ""
	b := validate.ScoreRecords("show ip arp", mixed, header)
	if math.Abs(b.Population-25*0.75) > 0.01 {
		t.Errorf("population: expected %.2f, got %.2f", 25*0.75, b.Population)
	}
	if math.Abs(b.Consistency-7.5) > 0.01 {
		t.Errorf("consistency: expected 7.5, got %.2f", b.Consistency)
	}
}

func TestScoreRecords_SingleRecordIsConsistent(t *testing.T) {
	header := []string{"A", "B", "C"}
	records := makeRecords(1, header)
	records[0]["C"] = ""

	b := validate.ScoreRecords("show clock", records, header)
	if b.Consistency != 15 {
		t.Errorf("single record consistency: expected 15, got %.1f", b.Consistency)
	}
}

func TestScoreRecords_EmptyInput(t *testing.T) {
	b := validate.ScoreRecords("show ip arp", nil, []string{"A"})
	if b.Total() != 0 {
		t.Errorf("no records must score 0, got %.1f", b.Total())
	}
}

func TestBreakdownTotalBounded(t *testing.T) {
	header := make([]string, 12)
	for i := range header {
		header[i] = fmt.Sprintf("F%d", i)
	}
	b := validate.ScoreRecords("show interfaces", makeRecords(20, header), header)
	if total := b.Total(); total != 100 {
		t.Errorf("ideal output should score 100, got %.2f", total)
	}
}
