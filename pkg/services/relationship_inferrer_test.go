package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekaya-inc/edda-engine/pkg/adapters/datasource"
	"github.com/ekaya-inc/edda-engine/pkg/models"
)

func catalogTable(schema, name string, cols ...datasource.CatalogColumn) datasource.CatalogTable {
	for i := range cols {
		cols[i].OrdinalPosition = i + 1
	}
	return datasource.CatalogTable{Schema: schema, Name: name, TableType: "BASE TABLE", Accessible: true, Columns: cols}
}

func pkCol(name, dataType string) datasource.CatalogColumn {
	return datasource.CatalogColumn{Name: name, DataType: dataType, IsPrimaryKey: true}
}

func catCol(name, dataType string) datasource.CatalogColumn {
	return datasource.CatalogColumn{Name: name, DataType: dataType, Nullable: true}
}

// describe renders relationships as "from -> to rule confidence" for compact assertions.
func describe(rels []*models.Relationship) []string {
	out := make([]string, len(rels))
	for i, r := range rels {
		label := "declared"
		if r.Rule != nil {
			label = *r.Rule
		}
		out[i] = r.From().String() + " -> " + r.To().String() + " " + label + " " + formatNumber(r.Confidence)
	}
	return out
}

func shopCatalog() *datasource.Catalog {
	c := &datasource.Catalog{
		Schema: "public",
		Tables: []datasource.CatalogTable{
			catalogTable("public", "customers", pkCol("id", "integer"), catCol("email", "text"), catCol("active", "boolean")),
			catalogTable("public", "order_items", pkCol("id", "integer"), catCol("order_id", "bigint"), catCol("product_key", "varchar(32)")),
			catalogTable("public", "orders", pkCol("id", "integer"), catCol("customer_id", "integer"),
				catCol("billing_customer_id", "integer"), catCol("created_at", "timestamp with time zone")),
			catalogTable("public", "products", pkCol("product_key", "text"), catCol("name", "text")),
		},
		ForeignKeys: []datasource.ForeignKey{{
			ConstraintName: "orders_customer_id_fkey",
			SourceSchema:   "public", SourceTable: "orders", SourceColumn: "customer_id",
			TargetSchema: "public", TargetTable: "customers", TargetColumn: "id",
		}},
	}
	c.Sort()
	return c
}

func TestRelationshipInferrer_DefaultRules(t *testing.T) {
	rels := NewRelationshipInferrer().Infer(shopCatalog())

	assert.Equal(t, []string{
		"public.order_items.order_id -> public.orders.id fk_suffix 0.9",
		"public.order_items.product_key -> public.products.product_key same_name_pk 0.8",
		"public.orders.billing_customer_id -> public.customers.id prefix_contains 0.6",
		"public.orders.customer_id -> public.customers.id declared 1",
	}, describe(rels))

	declared := rels[3]
	require.NotNil(t, declared.ConstraintName)
	assert.Equal(t, "orders_customer_id_fkey", *declared.ConstraintName)
	assert.Equal(t, models.RelationshipKindDeclared, declared.Kind)
	assert.Nil(t, declared.Rule)
	assert.Nil(t, rels[0].ConstraintName)
	assert.Equal(t, models.RelationshipKindInferred, rels[0].Kind)
}

func TestRelationshipInferrer_NeverDuplicatesDeclared(t *testing.T) {
	rels := NewRelationshipInferrer().Infer(shopCatalog())

	seen := map[string]models.RelationshipKind{}
	for _, r := range rels {
		key := r.From().String()
		if kind, ok := seen[key]; ok {
			t.Fatalf("column %s linked twice (%s and %s)", key, kind, r.Kind)
		}
		seen[key] = r.Kind
	}
}

func TestRelationshipInferrer_SkipsInaccessibleAndIncompatible(t *testing.T) {
	c := &datasource.Catalog{Tables: []datasource.CatalogTable{
		catalogTable("public", "customers", pkCol("id", "uuid")),
		catalogTable("public", "orders", pkCol("id", "integer"), catCol("customer_id", "integer")),
		catalogTable("public", "secrets", pkCol("id", "integer"), catCol("order_id", "integer")),
	}}
	c.Tables[2].Accessible = false

	rels := NewRelationshipInferrer().Infer(c)
	assert.Empty(t, rels, "uuid vs integer is not joinable and secrets is unreadable")
}

func TestRelationshipInferrer_NoSelfReference(t *testing.T) {
	c := &datasource.Catalog{Tables: []datasource.CatalogTable{
		catalogTable("public", "employees", pkCol("id", "integer"), catCol("employee_id", "integer")),
	}}
	assert.Empty(t, NewRelationshipInferrer().Infer(c))
}

func TestRelationshipInferrer_TieBreaks(t *testing.T) {
	t.Run("schema order", func(t *testing.T) {
		c := &datasource.Catalog{Tables: []datasource.CatalogTable{
			catalogTable("sales", "users", pkCol("id", "integer")),
			catalogTable("auth", "users", pkCol("id", "integer")),
			catalogTable("app", "events", pkCol("id", "integer"), catCol("user_id", "integer")),
		}}
		rels := NewRelationshipInferrer().Infer(c)
		assert.Equal(t, []string{"app.events.user_id -> auth.users.id fk_suffix 0.9"}, describe(rels))
	})

	t.Run("exact prefix wins over table order", func(t *testing.T) {
		c := &datasource.Catalog{Tables: []datasource.CatalogTable{
			catalogTable("public", "accounts", pkCol("code", "text")),
			catalogTable("public", "sales_accounts", pkCol("code", "text")),
			catalogTable("public", "ledger", pkCol("id", "integer"), catCol("sales_account_key", "text")),
		}}
		rels := NewRelationshipInferrer().Infer(c)
		assert.Equal(t, []string{"public.ledger.sales_account_key -> public.sales_accounts.code prefix_contains 0.6"}, describe(rels))
	})

	t.Run("rule order beats table order", func(t *testing.T) {
		c := &datasource.Catalog{Tables: []datasource.CatalogTable{
			catalogTable("public", "accounts", pkCol("id", "integer")),
			catalogTable("public", "customer_accounts", pkCol("id", "integer")),
			catalogTable("public", "ledger", pkCol("id", "integer"), catCol("customer_account_id", "integer")),
		}}
		rels := NewRelationshipInferrer().Infer(c)
		assert.Equal(t, []string{"public.ledger.customer_account_id -> public.customer_accounts.id fk_suffix 0.9"}, describe(rels))
	})
}

type alwaysRule struct{}

func (alwaysRule) Name() string { return "always" }
func (alwaysRule) Match(RuleColumn, RuleKey) (float64, bool) {
	return 0.1, true
}

func TestRelationshipInferrer_PluggableRules(t *testing.T) {
	c := &datasource.Catalog{Tables: []datasource.CatalogTable{
		catalogTable("public", "a", pkCol("id", "integer")),
		catalogTable("public", "b", pkCol("id", "integer"), catCol("anything", "integer")),
	}}

	rels := NewRelationshipInferrer(alwaysRule{}).Infer(c)
	assert.Equal(t, []string{
		"public.a.id -> public.b.id always 0.1",
		"public.b.anything -> public.a.id always 0.1",
		"public.b.id -> public.a.id always 0.1",
	}, describe(rels))
}

func TestKeyPrefix(t *testing.T) {
	for name, want := range map[string]string{
		"customer_id":     "customer",
		"Account_UUID":    "account",
		"product_key":     "product",
		"billing_cust_id": "billing_cust",
	} {
		got, ok := keyPrefix(name)
		assert.True(t, ok, name)
		assert.Equal(t, want, got)
	}
	_, ok := keyPrefix("_id")
	assert.False(t, ok)
	_, ok = keyPrefix("status")
	assert.False(t, ok)
}
