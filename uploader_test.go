package loader

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func zeroBackOff() backoff.BackOff { return &backoff.ZeroBackOff{} }

func newTestUploader(tbl *Table, opts ...UploaderOption) *Uploader {
	base := []UploaderOption{WithPacing(0), WithWaveBackOff(zeroBackOff), WithCategory("food")}
	return NewUploader(tbl, append(base, opts...)...)
}

type recordingProgress struct {
	mu       sync.Mutex
	started  int
	stopped  int
	advanced int
	total    int
}

func (p *recordingProgress) Start(_ string, total int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.started++
	p.total = total
}

func (p *recordingProgress) Advance(n int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.advanced += n
}

func (p *recordingProgress) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopped++
}

func TestUploader_SingleChunk(t *testing.T) {
	client := newFakeClient("Recalls")
	u := newTestUploader(makeTable(t, client))

	out, err := u.Run(context.Background(), makeRecords(10), false)
	require.NoError(t, err)
	assert.Equal(t, OutcomeUploadComplete, out.Kind)
	assert.Equal(t, []int{10}, client.calls())
	assert.Equal(t, 10, client.count("Recalls"))
	assert.Equal(t, 10, out.Accepted())
	assert.Len(t, out.Session, 26)
}

func TestUploader_MultipleChunksSequential(t *testing.T) {
	client := newFakeClient("Recalls")
	u := newTestUploader(makeTable(t, client))

	out, err := u.Run(context.Background(), makeRecords(60), false)
	require.NoError(t, err)
	assert.Equal(t, []int{25, 25, 10}, client.calls())
	require.Len(t, out.Waves, 1)
	assert.Equal(t, WaveResult{Wave: 1, Requests: 3, Submitted: 60}, out.Waves[0])
	assert.Equal(t, 60, client.count("Recalls"))
}

func TestUploader_RetriesUnprocessedUntilAccepted(t *testing.T) {
	client := newFakeClient("Recalls")
	client.hook = func(call int, reqs []types.WriteRequest) ([]types.WriteRequest, error) {
		if call == 1 {
			return reqs[:3], nil
		}
		return nil, nil
	}
	u := newTestUploader(makeTable(t, client))

	out, err := u.Run(context.Background(), makeRecords(30), false)
	require.NoError(t, err)
	assert.Equal(t, OutcomeUploadComplete, out.Kind)
	require.Len(t, out.Waves, 2)
	assert.Equal(t, 3, out.Waves[0].Unprocessed)
	assert.Equal(t, WaveResult{Wave: 2, Requests: 1, Submitted: 3}, out.Waves[1])
	assert.Equal(t, []int{25, 5, 3}, client.calls())
	assert.Equal(t, 30, client.count("Recalls"))
	assert.Equal(t, 30, out.Accepted())
}

func TestUploader_AbortsOnSubmissionError(t *testing.T) {
	client := newFakeClient("Recalls")
	client.hook = func(call int, _ []types.WriteRequest) ([]types.WriteRequest, error) {
		if call == 1 {
			return nil, errors.New("connection reset")
		}
		return nil, nil
	}
	progress := &recordingProgress{}
	u := newTestUploader(makeTable(t, client), WithProgress(progress))

	out, err := u.Run(context.Background(), makeRecords(40), false)
	require.Error(t, err)
	assert.True(t, IsCode(err, ErrSubmission), "got %v", err)
	assert.Equal(t, []int{25}, client.calls(), "second chunk must not be attempted")
	assert.Empty(t, out.Kind)
	assert.Equal(t, 0, client.count("Recalls"))
	assert.Equal(t, 1, progress.started)
	assert.Equal(t, 1, progress.stopped)

	var le *LoaderError
	require.ErrorAs(t, err, &le)
	assert.Equal(t, 1, le.Context["wave"])
	assert.Equal(t, 0, le.Context["chunk"])
}

func TestUploader_ThrottlingErrorIsClassified(t *testing.T) {
	client := newFakeClient("Recalls")
	client.hook = func(int, []types.WriteRequest) ([]types.WriteRequest, error) {
		return nil, &types.ProvisionedThroughputExceededException{Message: aws.String("slow down")}
	}
	u := newTestUploader(makeTable(t, client))

	_, err := u.Run(context.Background(), makeRecords(2), false)
	var le *LoaderError
	require.ErrorAs(t, err, &le)
	assert.Equal(t, ErrSubmission, le.Code)
	assert.Equal(t, true, le.Context["throttled"])
	assert.Equal(t, "ProvisionedThroughputExceededException", le.Context["providerCode"])
	var pte *types.ProvisionedThroughputExceededException
	assert.ErrorAs(t, err, &pte)
}

func TestUploader_RetryExhausted(t *testing.T) {
	client := newFakeClient("Recalls")
	client.hook = func(_ int, reqs []types.WriteRequest) ([]types.WriteRequest, error) {
		return reqs[:1], nil
	}
	progress := &recordingProgress{}
	u := newTestUploader(makeTable(t, client), WithMaxWaves(3), WithProgress(progress))

	out, err := u.Run(context.Background(), makeRecords(5), false)
	require.Error(t, err)
	assert.True(t, IsCode(err, ErrRetryExhausted), "got %v", err)
	assert.Len(t, out.Waves, 3)
	assert.Equal(t, []int{5, 1, 1}, client.calls())
	assert.Equal(t, 1, progress.stopped)
	assert.Equal(t, 4, progress.advanced)
}

func TestUploader_BackOffStopEndsRetries(t *testing.T) {
	client := newFakeClient("Recalls")
	client.hook = func(_ int, reqs []types.WriteRequest) ([]types.WriteRequest, error) {
		return reqs, nil
	}
	u := newTestUploader(makeTable(t, client),
		WithWaveBackOff(func() backoff.BackOff { return &backoff.StopBackOff{} }))

	out, err := u.Run(context.Background(), makeRecords(2), false)
	assert.True(t, IsCode(err, ErrRetryExhausted), "got %v", err)
	assert.Len(t, out.Waves, 1)
}

func TestUploader_CancelBetweenChunks(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	client := newFakeClient("Recalls")
	client.hook = func(call int, _ []types.WriteRequest) ([]types.WriteRequest, error) {
		if call == 1 {
			cancel()
		}
		return nil, nil
	}
	u := newTestUploader(makeTable(t, client), WithPacing(DefaultPacing))

	_, err := u.Run(ctx, makeRecords(30), false)
	require.Error(t, err)
	assert.True(t, IsCode(err, ErrCancelled), "got %v", err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, []int{25}, client.calls())
}

func hourBackOff() backoff.BackOff { return backoff.NewConstantBackOff(time.Hour) }

func TestUploader_CancelBetweenWaves(t *testing.T) {
	t.Run("BeforeBackOff", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		client := newFakeClient("Recalls")
		client.hook = func(call int, reqs []types.WriteRequest) ([]types.WriteRequest, error) {
			if call == 1 {
				cancel()
			}
			return reqs[:1], nil
		}
		u := newTestUploader(makeTable(t, client), WithWaveBackOff(hourBackOff))

		out, err := u.Run(ctx, makeRecords(3), false)
		assert.True(t, IsCode(err, ErrCancelled), "got %v", err)
		assert.Len(t, out.Waves, 1)
		assert.Equal(t, []int{3}, client.calls())
	})

	t.Run("DuringBackOff", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		client := newFakeClient("Recalls")
		client.hook = func(call int, reqs []types.WriteRequest) ([]types.WriteRequest, error) {
			if call == 1 {
				time.AfterFunc(20*time.Millisecond, cancel)
			}
			return reqs[:1], nil
		}
		u := newTestUploader(makeTable(t, client), WithWaveBackOff(hourBackOff))

		start := time.Now()
		out, err := u.Run(ctx, makeRecords(3), false)
		assert.True(t, IsCode(err, ErrCancelled), "got %v", err)
		assert.ErrorIs(t, err, context.Canceled)
		assert.Less(t, time.Since(start), time.Minute)
		assert.Len(t, out.Waves, 1)
		assert.Equal(t, []int{3}, client.calls())
		assert.Equal(t, 2, client.count("Recalls"))
	})
}

func TestUploader_DryRunLeavesMissingTableAlone(t *testing.T) {
	dir := t.TempDir()
	client := newFakeClient()
	asked := false
	confirm := ConfirmFunc(func(context.Context, string) (bool, error) {
		asked = true
		return true, nil
	})
	u := newTestUploader(makeTable(t, client), WithDebugDir(dir), WithConfirmation(confirm))

	out, err := u.Run(context.Background(), makeRecords(2), true)
	require.NoError(t, err)
	assert.Equal(t, OutcomeDryRunComplete, out.Kind)
	assert.False(t, asked)
	assert.Empty(t, client.created)
	assert.Empty(t, client.calls())
	assert.FileExists(t, out.DebugPath)
}

func TestUploader_DryRunSingleRequest(t *testing.T) {
	dir := t.TempDir()
	client := newFakeClient("Recalls")
	u := newTestUploader(makeTable(t, client), WithDebugDir(dir))

	out, err := u.Run(context.Background(), makeRecords(3), true)
	require.NoError(t, err)
	assert.Equal(t, OutcomeDryRunComplete, out.Kind)
	assert.Empty(t, client.calls())
	assert.Equal(t, filepath.Join(dir, "food-DEBUG.json"), out.DebugPath)

	b, err := os.ReadFile(out.DebugPath)
	require.NoError(t, err)
	var doc map[string]any
	require.NoError(t, json.Unmarshal(b, &doc))
	puts := doc["RequestItems"].(map[string]any)["Recalls"].([]any)
	require.Len(t, puts, 3)
	item := puts[0].(map[string]any)["PutRequest"].(map[string]any)["Item"].(map[string]any)
	assert.Equal(t, map[string]any{"S": "r000"}, item[DefaultPartitionKey])
	assert.Equal(t, map[string]any{"N": "2024"}, item["year"])
}

func TestUploader_DryRunMultipleRequests(t *testing.T) {
	dir := t.TempDir()
	client := newFakeClient("Recalls")
	u := newTestUploader(makeTable(t, client), WithDebugDir(dir))

	out, err := u.Run(context.Background(), makeRecords(26), true)
	require.NoError(t, err)
	assert.Empty(t, client.calls())

	b, err := os.ReadFile(out.DebugPath)
	require.NoError(t, err)
	var docs []map[string]any
	require.NoError(t, json.Unmarshal(b, &docs))
	assert.Len(t, docs, 2)
}

func TestUploader_MissingTable(t *testing.T) {
	t.Run("NoConfirmationAborts", func(t *testing.T) {
		client := newFakeClient()
		out, err := newTestUploader(makeTable(t, client)).Run(context.Background(), makeRecords(1), false)
		require.NoError(t, err)
		assert.Equal(t, OutcomeAborted, out.Kind)
		assert.Empty(t, client.created)
	})

	t.Run("Declined", func(t *testing.T) {
		client := newFakeClient()
		var prompt string
		confirm := ConfirmFunc(func(_ context.Context, p string) (bool, error) {
			prompt = p
			return false, nil
		})
		out, err := newTestUploader(makeTable(t, client), WithConfirmation(confirm)).
			Run(context.Background(), makeRecords(1), false)
		require.NoError(t, err)
		assert.Equal(t, OutcomeAborted, out.Kind)
		assert.Contains(t, prompt, `"Recalls"`)
		assert.Empty(t, client.created)
	})

	t.Run("ConfirmErrorFails", func(t *testing.T) {
		client := newFakeClient()
		confirm := ConfirmFunc(func(context.Context, string) (bool, error) { return false, errors.New("stdin closed") })
		_, err := newTestUploader(makeTable(t, client), WithConfirmation(confirm)).
			Run(context.Background(), makeRecords(1), false)
		assert.True(t, IsCode(err, ErrTableMissing), "got %v", err)
	})

	t.Run("CreatedWithoutWaitIsPending", func(t *testing.T) {
		client := newFakeClient()
		confirm := ConfirmFunc(func(context.Context, string) (bool, error) { return true, nil })
		out, err := newTestUploader(makeTable(t, client), WithConfirmation(confirm), WithTableWait(0)).
			Run(context.Background(), makeRecords(1), false)
		require.NoError(t, err)
		assert.Equal(t, OutcomeTableCreationPending, out.Kind)
		require.Len(t, client.created, 1)
		assert.Empty(t, client.calls())

		in := client.created[0]
		require.Len(t, in.KeySchema, 1)
		assert.Equal(t, DefaultPartitionKey, aws.ToString(in.KeySchema[0].AttributeName))
		assert.Equal(t, types.KeyTypeHash, in.KeySchema[0].KeyType)
		assert.Equal(t, int64(1), aws.ToInt64(in.ProvisionedThroughput.WriteCapacityUnits))
	})

	t.Run("CreatedAndWaitedUploads", func(t *testing.T) {
		client := newFakeClient()
		confirm := ConfirmFunc(func(context.Context, string) (bool, error) { return true, nil })
		out, err := newTestUploader(makeTable(t, client), WithConfirmation(confirm)).
			Run(context.Background(), makeRecords(4), false)
		require.NoError(t, err)
		assert.Equal(t, OutcomeUploadComplete, out.Kind)
		assert.Equal(t, 4, client.count("Recalls"))
	})
}

func TestUploader_RejectedRecordsAreIsolated(t *testing.T) {
	client := newFakeClient("Recalls")
	recs := makeRecords(4)
	delete(recs[1], DefaultPartitionKey)
	recs[2]["score"] = math.NaN()

	out, err := newTestUploader(makeTable(t, client)).Run(context.Background(), recs, false)
	require.NoError(t, err)
	assert.Equal(t, OutcomeUploadComplete, out.Kind)
	require.Len(t, out.Rejected, 2)
	assert.Equal(t, 1, out.Rejected[0].Index)
	assert.Equal(t, 2, out.Rejected[1].Index)
	assert.Equal(t, "r002", out.Rejected[1].Key)
	assert.True(t, IsCode(out.Rejected[1].Err, ErrMapping))
	assert.Equal(t, 2, client.count("Recalls"))
}

func TestUploader_ProgressStoppedOnSuccess(t *testing.T) {
	client := newFakeClient("Recalls")
	progress := &recordingProgress{}
	_, err := newTestUploader(makeTable(t, client), WithProgress(progress)).
		Run(context.Background(), makeRecords(30), false)
	require.NoError(t, err)
	assert.Equal(t, 1, progress.started)
	assert.Equal(t, 1, progress.stopped)
	assert.Equal(t, 30, progress.total)
	assert.Equal(t, 30, progress.advanced)
}

func TestUploader_Logs(t *testing.T) {
	client := newFakeClient("Recalls")
	var mu sync.Mutex
	var messages []string
	logger := FuncLogger{Fn: func(level, msg string, _ map[string]any) {
		mu.Lock()
		defer mu.Unlock()
		messages = append(messages, level+":"+msg)
	}}
	_, err := newTestUploader(makeTable(t, client), WithLogger(logger)).
		Run(context.Background(), makeRecords(1), false)
	require.NoError(t, err)
	assert.Contains(t, messages, "info:Upload session started")
	assert.Contains(t, messages, "info:Upload session complete")
}
