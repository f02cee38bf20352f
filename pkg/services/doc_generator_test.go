package services

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekaya-inc/edda-engine/pkg/models"
)

func ordersDocInput() DocInput {
	fk := "orders_customer_id_fkey"
	rule := "prefix_contains"
	return DocInput{
		Table: &models.Table{
			SchemaName: "public", TableName: "orders", TableType: "BASE TABLE", RowEstimate: 1200,
			Constraints: models.TableConstraints{
				Unique:  []models.UniqueConstraint{{Name: "orders_number_key", Columns: []string{"number"}}},
				Indexes: []models.IndexInfo{{Name: "idx_orders_customer", Definition: "CREATE INDEX idx_orders_customer ON public.orders (customer_id)"}},
			},
		},
		Columns: []*models.Column{
			{ColumnName: "customer_id", DataType: "integer", IsFK: true, OrdinalPosition: 2, PIIRisk: models.PIIRiskLow},
			{ColumnName: "id", DataType: "integer", IsPK: true, OrdinalPosition: 1, PIIRisk: models.PIIRiskLow},
			{ColumnName: "number", DataType: "text", OrdinalPosition: 3, PIIRisk: models.PIIRiskLow},
			{ColumnName: "billing_customer_id", DataType: "integer", Nullable: true, OrdinalPosition: 4, PIIRisk: models.PIIRiskNone},
		},
		Relationships: []*models.Relationship{
			{FromSchema: "public", FromTable: "orders", FromColumn: "customer_id", ToSchema: "public", ToTable: "customers", ToColumn: "id",
				ConstraintName: &fk, Confidence: 1, Kind: models.RelationshipKindDeclared},
			{FromSchema: "public", FromTable: "orders", FromColumn: "billing_customer_id", ToSchema: "public", ToTable: "customers", ToColumn: "id",
				Confidence: 0.6, Kind: models.RelationshipKindInferred, Rule: &rule},
		},
		Quality: &models.QualityReport{QualityScore: 93, Reasons: []string{"Column billing_customer_id is 80% null (sample)"}},
	}
}

func TestGenerateDoc_Markdown(t *testing.T) {
	_, md := GenerateDoc(ordersDocInput())

	expected := `# public.orders

**What it represents:** Table ` + "`orders`" + ` in schema ` + "`public`" + `, about 1200 rows by engine statistics.

**Grain:** One row per id.

**Primary key(s):** id

**Foreign key column(s):** customer_id

## Columns

| Column | Type | Nullable | PK | FK | PII |
|---|---|---|---|---|---|
| id | integer | NO | ✓ |  | low |
| customer_id | integer | NO |  | ✓ | low |
| number | text | NO |  |  | low |
| billing_customer_id | integer | YES |  |  | none |

## Unique constraints

- orders_number_key: number

## Indexes

- idx_orders_customer

## Common joins

- public.orders.billing_customer_id → public.customers.id (inferred:prefix_contains 0.60)
- public.orders.customer_id → public.customers.id (orders_customer_id_fkey)

## Data quality

**Quality score:** 93

**Warnings:**
- Column billing_customer_id is 80% null (sample)

## Usage recommendations

- Use primary keys for stable joins.
- Validate null-heavy columns before relying on them in reporting.
- Use date filters when querying large tables.
`
	assert.Equal(t, expected, md)
}

func TestGenerateDoc_JSON(t *testing.T) {
	doc, _ := GenerateDoc(ordersDocInput())

	assert.Equal(t, "public.orders", doc.Table)
	assert.Equal(t, []string{"id"}, doc.PrimaryKeys)
	assert.Equal(t, []models.DocForeignKey{{Column: "customer_id", References: "public.customers.id"}}, doc.ForeignKeys)
	require.Len(t, doc.Columns, 4)
	assert.Equal(t, "id", doc.Columns[0].Name)
	require.Len(t, doc.CommonJoins, 2)
	assert.Equal(t, models.RelationshipKindInferred, doc.CommonJoins[0].Kind)
	require.NotNil(t, doc.QualityScore)
	assert.Equal(t, 93, *doc.QualityScore)
	assert.Len(t, doc.UsageRecommendations, 3)
}

func TestGenerateDoc_Deterministic(t *testing.T) {
	in := ordersDocInput()
	doc1, md1 := GenerateDoc(in)

	// Reverse the inputs; output must not depend on their order.
	reversed := ordersDocInput()
	for i, j := 0, len(reversed.Columns)-1; i < j; i, j = i+1, j-1 {
		reversed.Columns[i], reversed.Columns[j] = reversed.Columns[j], reversed.Columns[i]
	}
	reversed.Relationships[0], reversed.Relationships[1] = reversed.Relationships[1], reversed.Relationships[0]
	doc2, md2 := GenerateDoc(reversed)

	assert.Equal(t, md1, md2)
	assert.Equal(t, doc1, doc2)
	assert.Equal(t, "customer_id", in.Columns[0].ColumnName, "inputs are not mutated")
}

func TestGenerateDoc_NoQualityAndCaps(t *testing.T) {
	table := &models.Table{SchemaName: "public", TableName: "audit", TableType: "VIEW"}
	for i := 0; i < 10; i++ {
		table.Constraints.Indexes = append(table.Constraints.Indexes, models.IndexInfo{Name: fmt.Sprintf("idx_%02d", i)})
	}
	var rels []*models.Relationship
	for i := 0; i < 10; i++ {
		rule := "fk_suffix"
		rels = append(rels, &models.Relationship{
			FromSchema: "public", FromTable: "audit", FromColumn: fmt.Sprintf("c%02d_id", i),
			ToSchema: "public", ToTable: "t", ToColumn: "id", Confidence: 0.9, Kind: models.RelationshipKindInferred, Rule: &rule,
		})
	}

	doc, md := GenerateDoc(DocInput{Table: table, Relationships: rels})

	assert.Nil(t, doc.QualityScore)
	assert.Empty(t, doc.Warnings)
	assert.NotNil(t, doc.Warnings)
	assert.Len(t, doc.CommonJoins, maxDocJoins)
	assert.Empty(t, doc.PrimaryKeys)
	assert.Equal(t, "One row represents one record in this table.", doc.Grain)
	assert.Contains(t, md, "**What it represents:** View `audit`")
	assert.Contains(t, md, "**Primary key(s):** none")
	assert.Contains(t, md, "**Quality score:** not assessed")
	assert.Contains(t, md, "- idx_07\n- and 2 more\n")
	assert.NotContains(t, md, "idx_08")
	assert.Equal(t, maxDocJoins, strings.Count(md, "(inferred:fk_suffix 0.90)"))
}
