//go:build integration

package store

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"civic-dispatch/config"
	"civic-dispatch/core/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func newPostgresFixture(t *testing.T) *fixture {
	t.Helper()
	if os.Getenv("DOCKER_AVAILABLE") != "true" && os.Getenv("DOCKER_AVAILABLE") != "1" {
		t.Skip("docker not available")
	}
	ctx := context.Background()
	req := tc.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "dispatch",
			"POSTGRES_PASSWORD": "dispatch",
			"POSTGRES_DB":       "dispatch",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{ContainerRequest: req, Started: true})
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := container.Terminate(context.Background()); err != nil {
			t.Logf("terminate postgres: %v", err)
		}
	})
	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)

	cfg := &config.AppConfig{
		DBDriver: "postgres",
		DBURL:    fmt.Sprintf("postgres://dispatch:dispatch@%s:%s/dispatch?sslmode=disable", host, port.Port()),
	}
	logger := utils.NopLogger()
	db, err := NewDB(cfg, logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, ApplyMigrations(ctx, db, logger))
	require.NoError(t, ApplyMigrations(ctx, db, logger))

	return &fixture{
		issues:      NewIssuesStore(db),
		officials:   NewOfficialsStore(db),
		departments: NewDepartmentsStore(db),
		assignments: NewAssignmentsStore(db),
		audits:      NewAuditStore(db),
	}
}

func TestPostgresAssignLifecycle(t *testing.T) {
	ctx := context.Background()
	f := newPostgresFixture(t)
	dept := f.department(t, "Roads")
	a := f.official(t, dept, "A", "Andheri")
	b := f.official(t, dept, "B", "Bandra")
	id := f.issue(t, &dept)

	res, err := f.assignments.Assign(ctx, AssignParams{IssueID: id, AssigneeID: a, Next: forceStatus(StatusUnderProgress)})
	require.NoError(t, err)
	assert.False(t, res.Reassigned)
	res, err = f.assignments.Assign(ctx, AssignParams{IssueID: id, AssigneeID: b, Next: forceStatus(StatusUnderProgress)})
	require.NoError(t, err)
	assert.True(t, res.Reassigned)

	roster, err := f.officials.Roster(ctx, dept)
	require.NoError(t, err)
	require.Len(t, roster, 2)
	assert.Equal(t, 0, roster[0].Workload)
	assert.Equal(t, 1, roster[1].Workload)

	un, err := f.assignments.Unassign(ctx, id, "admin", forceStatus(StatusActive))
	require.NoError(t, err)
	assert.True(t, un.Removed)

	drift, err := f.assignments.FindLedgerDrift(ctx)
	require.NoError(t, err)
	assert.Empty(t, drift)

	_, err = f.departments.CreateDepartment(ctx, &Department{Name: "Roads"})
	assert.ErrorIs(t, err, ErrConflict)
}

func TestPostgresConcurrentAssignKeepsOneRow(t *testing.T) {
	ctx := context.Background()
	f := newPostgresFixture(t)
	dept := f.department(t, "Water")
	var officials []int64
	for i := 0; i < 4; i++ {
		officials = append(officials, f.official(t, dept, fmt.Sprintf("O%d", i), ""))
	}
	id := f.issue(t, &dept)

	var wg sync.WaitGroup
	for _, off := range officials {
		wg.Add(1)
		go func(off int64) {
			defer wg.Done()
			_, err := f.assignments.Assign(ctx, AssignParams{IssueID: id, AssigneeID: off, Next: forceStatus(StatusUnderProgress)})
			if err != nil {
				assert.ErrorIs(t, err, ErrConflict)
			}
		}(off)
	}
	wg.Wait()

	total := 0
	for _, off := range officials {
		n, err := f.officials.WorkloadOf(ctx, off)
		require.NoError(t, err)
		total += n
	}
	assert.Equal(t, 1, total)
}
