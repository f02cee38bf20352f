package mysql

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekaya-inc/edda-engine/pkg/adapters/datasource"
	"github.com/ekaya-inc/edda-engine/pkg/apperrors"
	"github.com/ekaya-inc/edda-engine/pkg/models"
)

func TestFromMap(t *testing.T) {
	cfg, err := FromMap(map[string]any{
		"host":               "db.internal",
		"port":               "3307",
		"user":               "root",
		"password":           "secret",
		"database":           "shop",
		"tls":                "skip-verify",
		"connection_timeout": float64(3),
	})
	require.NoError(t, err)

	assert.Equal(t, 3307, cfg.Port)
	assert.Equal(t, "shop", cfg.Schema, "schema defaults to the database")
	assert.Equal(t, "skip-verify", cfg.TLS)
	assert.Equal(t, 3*time.Second, cfg.DialTimeout)
}

func TestFromMap_Defaults(t *testing.T) {
	cfg, err := FromMap(map[string]any{"host": "h", "user": "u", "database": "d"})
	require.NoError(t, err)
	assert.Equal(t, DefaultPort(), cfg.Port)
	assert.Equal(t, DefaultTLS(), cfg.TLS)
	assert.Equal(t, DefaultDialTimeout, cfg.DialTimeout)
}

func TestFromMap_Errors(t *testing.T) {
	tests := []struct {
		name    string
		config  map[string]any
		wantErr string
	}{
		{"missing host", map[string]any{"user": "u", "database": "d"}, "host is required"},
		{"missing user", map[string]any{"host": "h", "database": "d"}, "user is required"},
		{"missing database", map[string]any{"host": "h", "user": "u"}, "database is required"},
		{"port out of range", map[string]any{"host": "h", "user": "u", "database": "d", "port": float64(70000)}, "invalid port"},
		{"bad tls", map[string]any{"host": "h", "user": "u", "database": "d", "tls": "maybe"}, "invalid tls mode"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := FromMap(tt.config)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestDriverConfig(t *testing.T) {
	dc := driverConfig(&Config{
		Host: "db.internal", Port: 3306, User: "root", Password: "p@ss:w/rd",
		Database: "shop", TLS: "false", DialTimeout: 5 * time.Second,
	})
	assert.Equal(t, "tcp", dc.Net)
	assert.Equal(t, "db.internal:3306", dc.Addr)
	assert.True(t, dc.ParseTime)
	assert.Equal(t, 5*time.Second, dc.Timeout)

	parsed, err := mysql.ParseDSN(dc.FormatDSN())
	require.NoError(t, err)
	assert.Equal(t, "p@ss:w/rd", parsed.Passwd)
	assert.Equal(t, "shop", parsed.DBName)
}

func TestClassifyMySQLError(t *testing.T) {
	tests := []struct {
		number uint16
		want   apperrors.Kind
	}{
		{1044, apperrors.KindAuthFailed},
		{1045, apperrors.KindAuthFailed},
		{1049, apperrors.KindAuthFailed},
		{1142, apperrors.KindPermissionDeniedPartial},
		{1143, apperrors.KindPermissionDeniedPartial},
		{3024, apperrors.KindTimeout},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.number), func(t *testing.T) {
			err := fmt.Errorf("query: %w", &mysql.MySQLError{Number: tt.number, Message: "boom"})
			kind, ok := classifyMySQLError(err)
			require.True(t, ok)
			assert.Equal(t, tt.want, kind)
		})
	}

	_, ok := classifyMySQLError(&mysql.MySQLError{Number: 1146})
	assert.False(t, ok)
	_, ok = classifyMySQLError(errors.New("plain"))
	assert.False(t, ok)
}

func TestSampler_ClassifyTimeoutIsPartial(t *testing.T) {
	s := &Sampler{}
	assert.Equal(t, apperrors.KindTimeoutPartial, apperrors.KindOf(s.classify("shop.orders", context.DeadlineExceeded)))
	assert.Equal(t, apperrors.KindTimeoutPartial, apperrors.KindOf(s.classify("shop.orders", &mysql.MySQLError{Number: 3024})))
}

func TestBuildSampleQuery(t *testing.T) {
	tests := []struct {
		name     string
		req      datasource.SampleRequest
		wantSQL  string
		wantArgs []any
	}{
		{
			name: "quick with primary key",
			req: datasource.SampleRequest{
				Schema: "shop", Table: "orders", Columns: []string{"id", "total"},
				PrimaryKey: []string{"id"}, Limit: 50, Mode: models.ScanModeQuick,
			},
			wantSQL:  "SELECT t.`id`, t.`total` FROM `shop`.`orders` AS t ORDER BY t.`id` LIMIT ?",
			wantArgs: []any{50},
		},
		{
			name: "quick without primary key reads n rows then orders by position",
			req: datasource.SampleRequest{
				Schema: "shop", Table: "log", Columns: []string{"at", "msg"},
				Limit: 5, Mode: models.ScanModeQuick,
			},
			wantSQL:  "SELECT t.`at`, t.`msg` FROM (SELECT * FROM `shop`.`log` LIMIT ?) AS t ORDER BY 1, 2",
			wantArgs: []any{5},
		},
		{
			name: "full hashes a key range window",
			req: datasource.SampleRequest{
				Schema: "shop", Table: "orders", Columns: []string{"id", "total"},
				PrimaryKey: []string{"id"}, Limit: 50, Mode: models.ScanModeFull, RowEstimate: 5_000_000,
			},
			wantSQL: "SELECT t.`id`, t.`total` FROM (SELECT * FROM `shop`.`orders` ORDER BY `id` LIMIT ?) AS t" +
				" ORDER BY MD5(CONCAT(?, CONCAT_WS('|', t.`id`, t.`total`))), t.`id` LIMIT ?",
			wantArgs: []any{200, datasource.SampleSeed("shop", "orders"), 50},
		},
		{
			name: "full without primary key hashes the first rows read",
			req: datasource.SampleRequest{
				Schema: "shop", Table: "log", Columns: []string{"msg"},
				Limit: 2, Mode: models.ScanModeFull,
			},
			wantSQL:  "SELECT t.`msg` FROM (SELECT * FROM `shop`.`log` LIMIT ?) AS t ORDER BY MD5(CONCAT(?, CONCAT_WS('|', t.`msg`))) LIMIT ?",
			wantArgs: []any{8, datasource.SampleSeed("shop", "log"), 2},
		},
		{
			name: "backticks are escaped",
			req: datasource.SampleRequest{
				Schema: "shop", Table: "we`ird", Columns: []string{"a`b"},
				Limit: 1, Mode: models.ScanModeQuick,
			},
			wantSQL:  "SELECT t.`a``b` FROM (SELECT * FROM `shop`.`we``ird` LIMIT ?) AS t ORDER BY 1",
			wantArgs: []any{1},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			query, args := buildSampleQuery(tt.req)
			assert.Equal(t, tt.wantSQL, query)
			assert.Equal(t, tt.wantArgs, args)
		})
	}
}

func TestIndexDef(t *testing.T) {
	tests := []struct {
		def  indexDef
		want string
	}{
		{indexDef{name: "PRIMARY", unique: true, indexType: "BTREE", columns: []string{"`id`"}}, "PRIMARY KEY `PRIMARY` USING BTREE (`id`)"},
		{indexDef{name: "uq_email", unique: true, indexType: "BTREE", columns: []string{"`email`"}}, "UNIQUE INDEX `uq_email` USING BTREE (`email`)"},
		{indexDef{name: "ix_a_b", indexType: "BTREE", columns: []string{"`a`", "`b`"}}, "INDEX `ix_a_b` USING BTREE (`a`, `b`)"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.def.info().Definition)
	}
}

func TestRegistered(t *testing.T) {
	assert.True(t, datasource.IsRegistered(string(models.DBTypeMySQL)))
}
