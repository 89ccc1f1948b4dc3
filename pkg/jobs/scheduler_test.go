package jobs

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/northstarcredit/core/pkg/retry"
)

func TestSchedulerScheduleInsertsJobAndExecution(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()

	sched := NewScheduler(db, NewRegistry(), DefaultConfig())

	mock.ExpectExec(`INSERT INTO jobs`).
		WithArgs("job-1", "obligation_due", false).
		WillReturnResult(sqlmock.NewResult(1, 1))

	mock.ExpectExec(`INSERT INTO job_executions`).
		WillReturnResult(sqlmock.NewResult(1, 1))

	executeAt := time.Now().Add(time.Hour)
	err = sched.Schedule(context.Background(), "job-1", "obligation_due", false, map[string]any{"obligation_id": "obl-1"}, executeAt)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSchedulerPollAndDispatchClaimsBatch(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()

	registry := NewRegistry()
	registry.Register("obligation_due", RunnerFunc(func(ctx context.Context, job Job) (Completion, error) {
		return Complete(), nil
	}), retry.DefaultMetadataOutboxConfig())

	sched := NewScheduler(db, registry, DefaultConfig())

	rows := sqlmock.NewRows([]string{"id", "type", "data", "attempt_index"}).
		AddRow("job-1", "obligation_due", []byte(`{}`), 0)

	mock.ExpectQuery(`WITH selected AS`).WillReturnRows(rows)

	n, err := sched.pollAndDispatch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestSchedulerExecuteRecoversFromPanic(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	sched := NewScheduler(db, NewRegistry(), DefaultConfig())

	runner := RunnerFunc(func(ctx context.Context, job Job) (Completion, error) {
		panic("boom")
	})

	_, err = sched.execute(context.Background(), runner, Job{ID: "job-1", Type: "obligation_due"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "panic running job")
}

func TestSchedulerFinishComplete(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()

	sched := NewScheduler(db, NewRegistry(), DefaultConfig())

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE job_executions SET state = 'completed'`).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	sched.finish(context.Background(), Job{ID: "job-1", Type: "obligation_due"}, Complete())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSchedulerFinishRescheduleIn(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()

	sched := NewScheduler(db, NewRegistry(), DefaultConfig())

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE job_executions SET state = 'pending'`).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	sched.finish(context.Background(), Job{ID: "job-1", Type: "obligation_due"}, RescheduleIn(time.Minute))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSchedulerFailDeadLettersAtMaxAttempts(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()

	sched := NewScheduler(db, NewRegistry(), DefaultConfig())

	mock.ExpectExec(`UPDATE job_executions SET state = 'failed'`).
		WithArgs("job-1", MaxAttempts).
		WillReturnResult(sqlmock.NewResult(1, 1))

	reg := registration{retry: retry.DefaultMetadataOutboxConfig()}
	sched.fail(context.Background(), Job{ID: "job-1", Type: "obligation_due", Attempt: MaxAttempts - 1}, reg, assert.AnError)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSchedulerReclaimLostReturnsLostJobTypes(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()

	sched := NewScheduler(db, NewRegistry(), Config{JobLostInterval: time.Minute})

	rows := sqlmock.NewRows([]string{"type"}).AddRow("obligation_due")
	mock.ExpectQuery(`WITH lost AS`).WillReturnRows(rows)

	types, err := sched.repo.reclaimLost(context.Background(), time.Now(), time.Now())
	require.NoError(t, err)
	assert.Equal(t, []string{"obligation_due"}, types)
}
