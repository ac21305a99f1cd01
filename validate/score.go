package validate

import "strings"

// Score weights. Records and fields carry the bulk; population and
// consistency reward templates whose values actually land.
const (
	maxRecordScore      = 30.0
	maxFieldScore       = 30.0
	maxPopulationScore  = 25.0
	maxConsistencyScore = 15.0
)

// Breakdown carries the per-factor components of a template score.
type Breakdown struct {
	Records     float64
	Fields      float64
	Population  float64
	Consistency float64
}

// Total sums the factors into the 0..100 score.
func (b Breakdown) Total() float64 {
	return b.Records + b.Fields + b.Population + b.Consistency
}

// ScoreRecords rates how well parsed records fit the command the
// template claims to parse. Version-style commands expect exactly one
// record and are penalized for more; tabular commands reward volume.
func ScoreRecords(templateCommand string, records []Record, header []string) Breakdown {
	var b Breakdown
	n := len(records)
	if n == 0 {
		return b
	}

	versionCommand := strings.Contains(strings.ToLower(templateCommand), "version")
	switch {
	case versionCommand && n == 1:
		b.Records = maxRecordScore
	case versionCommand:
		b.Records = 15 - float64(n-1)*5
		if b.Records < 0 {
			b.Records = 0
		}
	case n >= 10:
		b.Records = maxRecordScore
	case n >= 3:
		b.Records = 20 + float64(n-3)*(10.0/7.0)
	default:
		b.Records = float64(n) * 10
	}

	fields := len(header)
	switch {
	case fields >= 10:
		b.Fields = maxFieldScore
	case fields >= 6:
		b.Fields = 20 + float64(fields-6)*2.5
	case fields >= 3:
		b.Fields = 10 + float64(fields-3)*(10.0/3.0)
	default:
		b.Fields = float64(fields) * 5
	}

	b.Population = populationRate(records, header) * maxPopulationScore
	b.Consistency = consistencyRate(records, header) * maxConsistencyScore
	return b
}

// populationRate is the fraction of record fields holding a value.
func populationRate(records []Record, header []string) float64 {
	if len(records) == 0 || len(header) == 0 {
		return 0
	}
	filled := 0
	for _, rec := range records {
		for _, name := range header {
			if strings.TrimSpace(rec[name]) != "" {
				filled++
			}
		}
	}
	return float64(filled) / float64(len(records)*len(header))
}

// consistencyRate is the fraction of fields that are either filled in
// every record or empty in every record. A single record is trivially
// consistent.
func consistencyRate(records []Record, header []string) float64 {
	if len(records) == 0 || len(header) == 0 {
		return 0
	}
	if len(records) == 1 {
		return 1
	}
	consistent := 0
	for _, name := range header {
		filled := 0
		for _, rec := range records {
			if strings.TrimSpace(rec[name]) != "" {
				filled++
			}
		}
		if filled == 0 || filled == len(records) {
			consistent++
		}
	}
	return float64(consistent) / float64(len(header))
}
