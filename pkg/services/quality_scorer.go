package services

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"github.com/ekaya-inc/edda-engine/pkg/adapters/datasource"
	"github.com/ekaya-inc/edda-engine/pkg/models"
)

// Quality score weights.
const (
	weightCompleteness  = 0.6
	weightKeyUniqueness = 0.25
	weightPIICleanness  = 0.15

	// highNullTableThreshold and highNullColumnThreshold are null percentages
	// above which a warning is raised.
	highNullTableThreshold  = 10.0
	highNullColumnThreshold = 50.0

	topValuesLimit = 3
)

const (
	reasonEmptySample   = "Empty sample: quality not assessed"
	reasonPartialSample = "Partial sample: metrics are lower-confidence"
)

// ProfileInput is one table's sample plus the catalog columns it was drawn from.
type ProfileInput struct {
	TableID uuid.UUID
	Columns []*models.Column // ordinal order
	Sample  *datasource.Sample
}

// ProfileResult is the quality report and the PII classification per column name.
type ProfileResult struct {
	Report *models.QualityReport
	PII    map[string]models.PIIRisk
}

// QualityScorer computes column metrics, PII risk and the table quality score.
// It is a pure computation over the sample.
type QualityScorer struct {
	detectors []PIIDetector
}

// NewQualityScorer creates a scorer. Without detectors the default list is used.
func NewQualityScorer(detectors ...PIIDetector) *QualityScorer {
	if len(detectors) == 0 {
		detectors = DefaultPIIDetectors()
	}
	return &QualityScorer{detectors: detectors}
}

// severity orders quality reasons.
type severity int

const (
	severityHigh severity = iota
	severityMedium
	severityLow
)

type reason struct {
	severity severity
	column   string // "" for table-level reasons
	text     string
}

// Score profiles the sample.
func (s *QualityScorer) Score(in ProfileInput) *ProfileResult {
	sample := in.Sample
	if sample == nil {
		sample = &datasource.Sample{}
	}
	rows := len(sample.Rows)
	index := lo.SliceToMap(sample.Columns, func(name string) (string, int) {
		return name, lo.IndexOf(sample.Columns, name)
	})

	result := &ProfileResult{
		Report: &models.QualityReport{
			TableID:       in.TableID,
			Reasons:       []string{},
			ColumnMetrics: make([]models.ColumnMetrics, 0, len(in.Columns)),
			TableMetrics: models.TableMetrics{
				RowSampled: rows,
				Partial:    sample.Partial,
			},
		},
		PII: make(map[string]models.PIIRisk, len(in.Columns)),
	}

	var reasons []reason
	var nullPcts []float64
	var highPII int
	keyScore := 100.0

	for _, col := range in.Columns {
		values := columnValues(sample, index, col.ColumnName)
		m := columnMetrics(col, values)
		result.Report.ColumnMetrics = append(result.Report.ColumnMetrics, m)
		if rows > 0 {
			nullPcts = append(nullPcts, m.NullPct)
		}

		risk, detector := s.classify(col.ColumnName, values, rows, sample.Partial)
		result.PII[col.ColumnName] = risk
		if risk == models.PIIRiskHigh {
			highPII++
			reasons = append(reasons, reason{severityHigh, col.ColumnName,
				fmt.Sprintf("PII risk: column %s classified high (%s)", col.ColumnName, detector)})
		}

		if rows == 0 {
			continue
		}
		if m.NullPct > highNullColumnThreshold {
			reasons = append(reasons, reason{severityMedium, col.ColumnName,
				fmt.Sprintf("Column %s is %s%% null (sample)", col.ColumnName, formatNumber(m.NullPct))})
		}
	}
	result.Report.TableMetrics.ColumnsHighPII = highPII

	if sample.Partial {
		reasons = append(reasons, reason{severityLow, "", reasonPartialSample})
	}

	if rows == 0 {
		reasons = append(reasons, reason{severityMedium, "", reasonEmptySample})
		result.Report.QualityScore = 100
		result.Report.Reasons = orderReasons(reasons)
		return result
	}

	pk := lo.Filter(in.Columns, func(c *models.Column, _ int) bool { return c.IsPK })
	if len(pk) > 0 {
		if ratio := keyDistinctRatio(sample, index, pk); ratio < 1 {
			keyScore = 100 * ratio
			reasons = append(reasons, reason{severityHigh, pk[0].ColumnName,
				fmt.Sprintf("Primary key %s not unique in sample (ratio %s)", keyName(pk), formatNumber(ratio))})
		}
	}

	avgNull := 0.0
	if len(nullPcts) > 0 {
		avgNull = round(lo.Sum(nullPcts)/float64(len(nullPcts)), 2)
		result.Report.TableMetrics.AvgNullPct = &avgNull
	}
	if avgNull > highNullTableThreshold {
		reasons = append(reasons, reason{severityMedium, "",
			fmt.Sprintf("High missing values: avg null %s%% (sample)", formatNumber(avgNull))})
	}

	completeness := 100 - avgNull
	piiCleanness := math.Max(0, 100-50*float64(highPII))
	score := weightCompleteness*completeness + weightKeyUniqueness*keyScore + weightPIICleanness*piiCleanness

	result.Report.QualityScore = clampScore(score)
	result.Report.Reasons = orderReasons(reasons)
	return result
}

// classify returns the column's PII risk and the detector that decided it.
func (s *QualityScorer) classify(column string, values []*string, rows int, partial bool) (models.PIIRisk, string) {
	if rows == 0 || partial {
		return models.PIIRiskUnknown, ""
	}

	nonNull := make([]string, 0, piiSampleLimit)
	for _, v := range values {
		if v == nil {
			continue
		}
		nonNull = append(nonNull, *v)
		if len(nonNull) == piiSampleLimit {
			break
		}
	}

	for _, d := range s.detectors {
		if risk, ok := d.Detect(column, nonNull); ok {
			return risk, d.Name()
		}
	}
	if len(nonNull) > 0 {
		return models.PIIRiskLow, ""
	}
	return models.PIIRiskNone, ""
}

// columnValues extracts one column from the sample. A column missing from
// the sample yields all nulls.
func columnValues(sample *datasource.Sample, index map[string]int, column string) []*string {
	values := make([]*string, len(sample.Rows))
	i, ok := index[column]
	if !ok {
		return values
	}
	for r, row := range sample.Rows {
		if i < len(row) {
			values[r] = row[i]
		}
	}
	return values
}

// keyDistinctRatio is distinct key tuples over sampled rows whose key
// columns are all non-null. A composite key is unique as a whole even when
// each of its columns repeats.
func keyDistinctRatio(sample *datasource.Sample, index map[string]int, pk []*models.Column) float64 {
	parts := make([][]*string, len(pk))
	for i, c := range pk {
		parts[i] = columnValues(sample, index, c.ColumnName)
	}

	seen := make(map[string]struct{}, len(sample.Rows))
	complete := 0
rows:
	for r := range sample.Rows {
		key := make([]string, len(pk))
		for i := range pk {
			v := parts[i][r]
			if v == nil {
				continue rows
			}
			key[i] = *v
		}
		complete++
		seen[strings.Join(key, "\x00")] = struct{}{}
	}
	if complete == 0 {
		return 0
	}
	return round(float64(len(seen))/float64(complete), 4)
}

// keyName is the column name for a single-column key and "(a, b)" otherwise.
func keyName(pk []*models.Column) string {
	names := lo.Map(pk, func(c *models.Column, _ int) string { return c.ColumnName })
	if len(names) == 1 {
		return names[0]
	}
	return "(" + strings.Join(names, ", ") + ")"
}

func columnMetrics(col *models.Column, values []*string) models.ColumnMetrics {
	m := models.ColumnMetrics{Column: col.ColumnName, TopValues: []models.ValueCount{}}
	if len(values) == 0 {
		return m
	}

	counts := make(map[string]int)
	var nonNull []string
	for _, v := range values {
		if v == nil {
			continue
		}
		counts[*v]++
		nonNull = append(nonNull, *v)
	}

	nulls := len(values) - len(nonNull)
	m.NullPct = round(float64(nulls)/float64(len(values))*100, 2)
	m.DistinctCount = len(counts)
	if len(nonNull) > 0 {
		m.DistinctRatio = round(float64(len(counts))/float64(len(nonNull)), 4)
	}
	m.TopValues = topValues(counts, topValuesLimit)

	if ClassifyType(col.DataType).Numeric() {
		addNumericStats(&m, nonNull)
	}
	return m
}

// topValues returns the n most frequent values, ties broken by value.
func topValues(counts map[string]int, n int) []models.ValueCount {
	out := make([]models.ValueCount, 0, len(counts))
	for v, c := range counts {
		out = append(out, models.ValueCount{Value: v, Count: c})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Value < out[j].Value
	})
	if len(out) > n {
		out = out[:n]
	}
	return out
}

// addNumericStats sets min, max, mean, p50 and p95. Values that do not parse
// as numbers are ignored; with none left the stats stay unset.
func addNumericStats(m *models.ColumnMetrics, values []string) {
	nums := make([]float64, 0, len(values))
	for _, v := range values {
		if f, err := strconv.ParseFloat(v, 64); err == nil && !math.IsNaN(f) && !math.IsInf(f, 0) {
			nums = append(nums, f)
		}
	}
	if len(nums) == 0 {
		return
	}
	sort.Float64s(nums)

	minV, maxV := nums[0], nums[len(nums)-1]
	mean := round(lo.Sum(nums)/float64(len(nums)), 4)
	p50, p95 := percentile(nums, 50), percentile(nums, 95)
	m.Min, m.Max, m.Mean, m.P50, m.P95 = &minV, &maxV, &mean, &p50, &p95
}

// percentile returns the nearest-rank percentile of sorted values.
func percentile(sorted []float64, p float64) float64 {
	rank := int(math.Ceil(p / 100 * float64(len(sorted))))
	if rank < 1 {
		rank = 1
	}
	if rank > len(sorted) {
		rank = len(sorted)
	}
	return sorted[rank-1]
}

func orderReasons(reasons []reason) []string {
	sort.SliceStable(reasons, func(i, j int) bool {
		if reasons[i].severity != reasons[j].severity {
			return reasons[i].severity < reasons[j].severity
		}
		return reasons[i].column < reasons[j].column
	})
	out := make([]string, len(reasons))
	for i, r := range reasons {
		out[i] = r.text
	}
	return out
}

// clampScore rounds half-up into [0,100].
func clampScore(score float64) int {
	s := int(math.Floor(score + 0.5))
	return max(0, min(100, s))
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}

// formatNumber prints a rounded metric without trailing zeros.
func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
