package loader

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	ddb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// ─── in-memory DynamoDB ───────────────────────────────────────────────────────

// batchHook decides what one BatchWriteItem call returns. call is 1-based.
type batchHook func(call int, reqs []types.WriteRequest) (unprocessed []types.WriteRequest, err error)

type fakeClient struct {
	mu sync.Mutex

	tables   map[string]map[string]WireRecord // table → key value → item
	key      string
	pageSize int

	hook       batchHook
	batchCalls []int // request sizes, in call order
	created    []*ddb.CreateTableInput
	listCalls  int
}

func newFakeClient(tables ...string) *fakeClient {
	m := &fakeClient{tables: map[string]map[string]WireRecord{}, key: DefaultPartitionKey, pageSize: 100}
	for _, t := range tables {
		m.tables[t] = map[string]WireRecord{}
	}
	return m
}

func (m *fakeClient) BatchWriteItem(_ context.Context, p *ddb.BatchWriteItemInput, _ ...func(*ddb.Options)) (*ddb.BatchWriteItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var total int
	for _, reqs := range p.RequestItems {
		total += len(reqs)
	}
	m.batchCalls = append(m.batchCalls, total)
	call := len(m.batchCalls)

	out := &ddb.BatchWriteItemOutput{UnprocessedItems: map[string][]types.WriteRequest{}}
	for tblName, reqs := range p.RequestItems {
		tbl, ok := m.tables[tblName]
		if !ok {
			return nil, &types.ResourceNotFoundException{Message: aws.String("table not found: " + tblName)}
		}
		var left []types.WriteRequest
		if m.hook != nil {
			var err error
			left, err = m.hook(call, reqs)
			if err != nil {
				return nil, err
			}
		}
		skip := map[string]bool{}
		for _, r := range left {
			skip[avString(r.PutRequest.Item[m.key])] = true
		}
		for _, r := range reqs {
			k := avString(r.PutRequest.Item[m.key])
			if !skip[k] {
				tbl[k] = r.PutRequest.Item
			}
		}
		if len(left) > 0 {
			out.UnprocessedItems[tblName] = left
		}
	}
	return out, nil
}

func (m *fakeClient) CreateTable(_ context.Context, p *ddb.CreateTableInput, _ ...func(*ddb.Options)) (*ddb.CreateTableOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	name := aws.ToString(p.TableName)
	if _, ok := m.tables[name]; ok {
		return nil, &types.ResourceInUseException{Message: aws.String("table exists")}
	}
	m.tables[name] = map[string]WireRecord{}
	m.created = append(m.created, p)
	return &ddb.CreateTableOutput{}, nil
}

func (m *fakeClient) DescribeTable(_ context.Context, p *ddb.DescribeTableInput, _ ...func(*ddb.Options)) (*ddb.DescribeTableOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	name := aws.ToString(p.TableName)
	if _, ok := m.tables[name]; !ok {
		return nil, &types.ResourceNotFoundException{Message: aws.String("table not found: " + name)}
	}
	return &ddb.DescribeTableOutput{Table: &types.TableDescription{
		TableName:   aws.String(name),
		TableStatus: types.TableStatusActive,
	}}, nil
}

func (m *fakeClient) ListTables(_ context.Context, p *ddb.ListTablesInput, _ ...func(*ddb.Options)) (*ddb.ListTablesOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listCalls++
	names := make([]string, 0, len(m.tables))
	for n := range m.tables {
		names = append(names, n)
	}
	sort.Strings(names)
	start := 0
	if p.ExclusiveStartTableName != nil {
		start = sort.SearchStrings(names, *p.ExclusiveStartTableName) + 1
	}
	end := min(start+m.pageSize, len(names))
	out := &ddb.ListTablesOutput{TableNames: names[start:end]}
	if end < len(names) {
		out.LastEvaluatedTableName = aws.String(names[end-1])
	}
	return out, nil
}

func (m *fakeClient) count(table string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.tables[table])
}

func (m *fakeClient) calls() []int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]int(nil), m.batchCalls...)
}

func avString(av types.AttributeValue) string {
	if s, ok := av.(*types.AttributeValueMemberS); ok {
		return s.Value
	}
	return ""
}

// ─── fixtures ─────────────────────────────────────────────────────────────────

func makeRecords(n int) []Record {
	recs := make([]Record, n)
	for i := range recs {
		recs[i] = Record{
			DefaultPartitionKey: fmt.Sprintf("r%03d", i),
			"title":             fmt.Sprintf("Recall %d", i),
			"year":              json.Number("2024"),
		}
	}
	return recs
}

func makeTable(t interface{ Fatalf(string, ...any) }, client DynamoClient) *Table {
	tbl, err := NewTable(TableParams{Spec: TableSpec{Name: "Recalls"}, Client: client})
	if err != nil {
		t.Fatalf("NewTable: %v", err)
	}
	return tbl
}
