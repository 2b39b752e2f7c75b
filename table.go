/*
Package loader – Table type.

A thin wrapper around the one DynamoDB table the recalls are loaded into.
*/
package loader

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	ddb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"
)

// DynamoClient is the interface satisfied by both the real AWS DynamoDB client
// and any test doubles / local stubs.
type DynamoClient interface {
	BatchWriteItem(ctx context.Context, params *ddb.BatchWriteItemInput, optFns ...func(*ddb.Options)) (*ddb.BatchWriteItemOutput, error)

	// DDL
	CreateTable(ctx context.Context, params *ddb.CreateTableInput, optFns ...func(*ddb.Options)) (*ddb.CreateTableOutput, error)
	DescribeTable(ctx context.Context, params *ddb.DescribeTableInput, optFns ...func(*ddb.Options)) (*ddb.DescribeTableOutput, error)
	ListTables(ctx context.Context, params *ddb.ListTablesInput, optFns ...func(*ddb.Options)) (*ddb.ListTablesOutput, error)
}

// TableParams configures a Table.
type TableParams struct {
	Spec   TableSpec
	Client DynamoClient
	Logger Logger // nil → discard
}

// Table represents the target DynamoDB table.
type Table struct {
	Name string
	Key  string

	spec   TableSpec
	client DynamoClient
	log    Logger
}

// NewTable creates and initialises a Table instance.
func NewTable(params TableParams) (*Table, error) {
	if params.Spec.Name == "" {
		return nil, NewArgError(`Missing "name" property`)
	}
	if params.Client == nil {
		return nil, NewArgError("Table has no DynamoDB client configured")
	}
	spec := params.Spec.withDefaults()
	t := &Table{
		Name:   spec.Name,
		Key:    spec.Key,
		spec:   spec,
		client: params.Client,
		log:    orNop(params.Logger),
	}
	t.log.Trace("Loading table", map[string]any{"table": t.Name, "key": t.Key})
	return t, nil
}

// ─── DDL ──────────────────────────────────────────────────────────────────────

// Exists returns true if the DynamoDB table is present.
func (t *Table) Exists(ctx context.Context) (bool, error) {
	tables, err := t.ListTables(ctx)
	if err != nil {
		return false, err
	}
	for _, name := range tables {
		if name == t.Name {
			return true, nil
		}
	}
	return false, nil
}

// ListTables returns all table names in the region, following pagination.
func (t *Table) ListTables(ctx context.Context) ([]string, error) {
	var names []string
	pages := ddb.NewListTablesPaginator(t.client, &ddb.ListTablesInput{})
	for pages.HasMorePages() {
		out, err := pages.NextPage(ctx)
		if err != nil {
			return nil, NewError("ListTables failed", WithCode(ErrRuntime), WithCause(err))
		}
		names = append(names, out.TableNames...)
	}
	return names, nil
}

// Create issues CreateTable. DynamoDB answers before the table is usable; use
// WaitActive to block until it is.
func (t *Table) Create(ctx context.Context) error {
	def := t.GetTableDefinition()
	_, err := t.client.CreateTable(ctx, &ddb.CreateTableInput{
		TableName:             aws.String(t.Name),
		AttributeDefinitions:  def.AttributeDefinitions,
		KeySchema:             def.KeySchema,
		BillingMode:           def.BillingMode,
		ProvisionedThroughput: def.ProvisionedThroughput,
	})
	if err != nil {
		return NewError(fmt.Sprintf(`CreateTable failed for "%s"`, t.Name), WithCode(ErrRuntime), WithCause(err))
	}
	t.log.Info("Table creation requested", map[string]any{"table": t.Name, "key": t.Key})
	return nil
}

// WaitActive polls DescribeTable until the table reports ACTIVE or maxWait
// elapses.
func (t *Table) WaitActive(ctx context.Context, maxWait time.Duration) error {
	waiter := ddb.NewTableExistsWaiter(t.client)
	err := waiter.Wait(ctx, &ddb.DescribeTableInput{TableName: aws.String(t.Name)}, maxWait)
	if err != nil {
		return NewError(fmt.Sprintf(`Table "%s" did not become active`, t.Name),
			WithCode(ErrTableMissing), WithCause(err), WithContext(map[string]any{"maxWait": maxWait.String()}))
	}
	return nil
}

// TableDefinition holds the CreateTable parameters derived from the TableSpec.
type TableDefinition struct {
	AttributeDefinitions  []types.AttributeDefinition
	KeySchema             []types.KeySchemaElement
	BillingMode           types.BillingMode
	ProvisionedThroughput *types.ProvisionedThroughput
}

// GetTableDefinition returns a single string hash key table with the TableSpec's
// provisioned throughput.
func (t *Table) GetTableDefinition() *TableDefinition {
	return &TableDefinition{
		AttributeDefinitions: []types.AttributeDefinition{
			{AttributeName: aws.String(t.Key), AttributeType: types.ScalarAttributeTypeS},
		},
		KeySchema: []types.KeySchemaElement{
			{AttributeName: aws.String(t.Key), KeyType: types.KeyTypeHash},
		},
		BillingMode: types.BillingModeProvisioned,
		ProvisionedThroughput: &types.ProvisionedThroughput{
			ReadCapacityUnits:  aws.Int64(t.spec.ReadCapacity),
			WriteCapacityUnits: aws.Int64(t.spec.WriteCapacity),
		},
	}
}

// ─── Batch write ──────────────────────────────────────────────────────────────

// BatchWrite submits one BatchWriteItem request of put operations and returns
// the items DynamoDB left unprocessed. items must not exceed MaxBatchWriteItems.
func (t *Table) BatchWrite(ctx context.Context, items []WireRecord) ([]WireRecord, error) {
	if len(items) == 0 {
		return nil, nil
	}
	if len(items) > MaxBatchWriteItems {
		return nil, NewArgError(fmt.Sprintf("batch of %d items exceeds the limit of %d", len(items), MaxBatchWriteItems))
	}
	input := buildBatchWriteInput(t.Name, items)
	t.log.Data("BatchWriteItem", map[string]any{"table": t.Name, "items": len(items)})

	out, err := t.client.BatchWriteItem(ctx, input)
	if err != nil {
		return nil, t.submitError(err)
	}
	var unprocessed []WireRecord
	for _, wr := range out.UnprocessedItems[t.Name] {
		if wr.PutRequest != nil {
			unprocessed = append(unprocessed, wr.PutRequest.Item)
		}
	}
	return unprocessed, nil
}

// buildBatchWriteInput wraps every item in a PutRequest for table.
func buildBatchWriteInput(table string, items []WireRecord) *ddb.BatchWriteItemInput {
	reqs := make([]types.WriteRequest, len(items))
	for i, item := range items {
		reqs[i] = types.WriteRequest{PutRequest: &types.PutRequest{Item: item}}
	}
	return &ddb.BatchWriteItemInput{RequestItems: map[string][]types.WriteRequest{table: reqs}}
}

func (t *Table) submitError(err error) *LoaderError {
	ctx := map[string]any{"table": t.Name}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return NewError("BatchWriteItem cancelled", WithCode(ErrCancelled), WithCause(err), WithContext(ctx))
	}

	msg := fmt.Sprintf(`BatchWriteItem failed for "%s"`, t.Name)
	var throughput *types.ProvisionedThroughputExceededException
	var limit *types.RequestLimitExceeded
	switch {
	case errors.As(err, &throughput):
		msg = "Provisioning Throughput Exception"
		ctx["throttled"] = true
	case errors.As(err, &limit):
		msg = "Request Limit Exceeded"
		ctx["throttled"] = true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		ctx["providerCode"] = apiErr.ErrorCode()
		ctx["fault"] = apiErr.ErrorFault().String()
	}
	return NewError(msg, WithCode(ErrSubmission), WithCause(err), WithContext(ctx))
}
