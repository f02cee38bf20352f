//go:build integration

package services

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ekaya-inc/edda-engine/pkg/models"
	"github.com/ekaya-inc/edda-engine/pkg/testhelpers"
)

func TestNATSScanEventPublisher_RoundTrip(t *testing.T) {
	nc := testhelpers.GetNATSConn(t)

	sub, err := nc.SubscribeSync("edda-test.scan.>")
	require.NoError(t, err)
	defer func() { _ = sub.Unsubscribe() }()
	require.NoError(t, nc.Flush())

	pub := NewNATSScanEventPublisher(nc, "edda-test", zap.NewNop())
	run := &models.ScanRun{ID: uuid.New(), DataSourceID: uuid.New(), Status: models.ScanStatusCompleted, TablesTotal: 2, TablesProfiled: 2}
	pub.Publish(context.Background(), NewScanEvent(run, time.Now()))
	require.NoError(t, nc.Flush())

	msg, err := sub.NextMsg(5 * time.Second)
	require.NoError(t, err)
	assert.Equal(t, "edda-test.scan.completed", msg.Subject)

	var event ScanEvent
	require.NoError(t, json.Unmarshal(msg.Data, &event))
	assert.Equal(t, run.ID, event.ScanRunID)
	assert.Equal(t, 2, event.TablesProfiled)
}
