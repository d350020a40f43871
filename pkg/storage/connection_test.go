package storage

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func newPingMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db, mock
}

func TestParseReplicaURLs(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected []string
	}{
		{name: "empty string", input: "", expected: nil},
		{
			name:     "single URL",
			input:    "postgres://localhost:5432/menuboard",
			expected: []string{"postgres://localhost:5432/menuboard"},
		},
		{
			name:     "whitespace and empty entries",
			input:    " postgres://r1:5432/menuboard ,, postgres://r2:5432/menuboard ,",
			expected: []string{"postgres://r1:5432/menuboard", "postgres://r2:5432/menuboard"},
		},
		{name: "only commas", input: " , , ", expected: []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ParseReplicaURLs(tt.input))
		})
	}
}

func TestReplicaMaxConns(t *testing.T) {
	assert.Equal(t, 2, replicaMaxConns(0))
	assert.Equal(t, 2, replicaMaxConns(3))
	assert.Equal(t, 12, replicaMaxConns(25))
}

func TestNewConnectionManager_UnreachablePrimary(t *testing.T) {
	config := ConnectionConfig{
		PrimaryURL: "postgres://nobody@127.0.0.1:1/menuboard?sslmode=disable&connect_timeout=1",
		Timeout:    time.Second,
	}

	cm, err := NewConnectionManager(config, quietLogger())
	require.Error(t, err)
	assert.Nil(t, cm)
	assert.Contains(t, err.Error(), "failed to connect to primary")
}

func TestConnectionManager_Replica(t *testing.T) {
	t.Run("no replicas falls back to primary", func(t *testing.T) {
		primary := &sql.DB{}
		cm := &ConnectionManager{primary: primary}
		assert.Same(t, primary, cm.Replica())
		assert.Same(t, primary, cm.Primary())
	})

	t.Run("round robin", func(t *testing.T) {
		r1, r2, r3 := &sql.DB{}, &sql.DB{}, &sql.DB{}
		cm := &ConnectionManager{primary: &sql.DB{}, replicas: []*sql.DB{r1, r2, r3}}

		counts := make(map[*sql.DB]int)
		for i := 0; i < 30; i++ {
			counts[cm.Replica()]++
		}
		assert.Equal(t, 10, counts[r1])
		assert.Equal(t, 10, counts[r2])
		assert.Equal(t, 10, counts[r3])
	})

	t.Run("concurrent selection", func(t *testing.T) {
		r1, r2 := &sql.DB{}, &sql.DB{}
		cm := &ConnectionManager{primary: &sql.DB{}, replicas: []*sql.DB{r1, r2}}

		var wg sync.WaitGroup
		results := make(chan *sql.DB, 100)
		for i := 0; i < 100; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				results <- cm.Replica()
			}()
		}
		wg.Wait()
		close(results)

		counts := make(map[*sql.DB]int)
		for db := range results {
			counts[db]++
		}
		assert.Equal(t, 50, counts[r1])
		assert.Equal(t, 50, counts[r2])
	})
}

func TestConnectionManager_HealthCheck(t *testing.T) {
	ctx := context.Background()

	t.Run("healthy", func(t *testing.T) {
		primary, primaryMock := newPingMock(t)
		replica, replicaMock := newPingMock(t)
		primaryMock.ExpectPing()
		replicaMock.ExpectPing()

		cm := &ConnectionManager{primary: primary, replicas: []*sql.DB{replica}}
		assert.NoError(t, cm.HealthCheck(ctx))
		assert.NoError(t, primaryMock.ExpectationsWereMet())
		assert.NoError(t, replicaMock.ExpectationsWereMet())
	})

	t.Run("primary down", func(t *testing.T) {
		primary, primaryMock := newPingMock(t)
		primaryMock.ExpectPing().WillReturnError(errors.New("connection refused"))

		cm := &ConnectionManager{primary: primary}
		err := cm.HealthCheck(ctx)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "primary unhealthy")
	})

	t.Run("some replicas down is tolerated", func(t *testing.T) {
		primary, primaryMock := newPingMock(t)
		r1, r1Mock := newPingMock(t)
		r2, r2Mock := newPingMock(t)
		primaryMock.ExpectPing()
		r1Mock.ExpectPing().WillReturnError(errors.New("timeout"))
		r2Mock.ExpectPing()

		cm := &ConnectionManager{primary: primary, replicas: []*sql.DB{r1, r2}}
		assert.NoError(t, cm.HealthCheck(ctx))
	})

	t.Run("all replicas down", func(t *testing.T) {
		primary, primaryMock := newPingMock(t)
		r1, r1Mock := newPingMock(t)
		r2, r2Mock := newPingMock(t)
		primaryMock.ExpectPing()
		r1Mock.ExpectPing().WillReturnError(errors.New("timeout"))
		r2Mock.ExpectPing().WillReturnError(errors.New("timeout"))

		cm := &ConnectionManager{primary: primary, replicas: []*sql.DB{r1, r2}}
		err := cm.HealthCheck(ctx)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "replica-0, replica-1")
	})
}

func TestConnectionManager_RemoveUnhealthyReplicas(t *testing.T) {
	r1, r1Mock := newPingMock(t)
	r2, r2Mock := newPingMock(t)
	r1Mock.ExpectPing().WillReturnError(errors.New("gone"))
	r1Mock.ExpectClose()
	r2Mock.ExpectPing()

	cm := &ConnectionManager{primary: &sql.DB{}, replicas: []*sql.DB{r1, r2}}
	removed := cm.RemoveUnhealthyReplicas(context.Background())

	assert.Equal(t, 1, removed)
	require.Len(t, cm.replicas, 1)
	assert.Same(t, r2, cm.Replica())
	assert.NoError(t, r1Mock.ExpectationsWereMet())
}

func TestConnectionManager_StatsAndClose(t *testing.T) {
	primary, primaryMock := newPingMock(t)
	replica, replicaMock := newPingMock(t)
	primaryMock.ExpectClose()
	replicaMock.ExpectClose().WillReturnError(errors.New("close failed"))

	cm := &ConnectionManager{primary: primary, replicas: []*sql.DB{replica}}
	stats := cm.Stats()
	assert.Len(t, stats.Replicas, 1)

	err := cm.Close()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "replica-0 close error")
	assert.Empty(t, cm.replicas)
	assert.NoError(t, primaryMock.ExpectationsWereMet())
}
