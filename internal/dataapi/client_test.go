package dataapi

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/rdsdata"
	"github.com/aws/aws-sdk-go-v2/service/rdsdata/types"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/punchamoorthee/pursledger/internal/bundle"
	"github.com/punchamoorthee/pursledger/internal/domain"
	"github.com/punchamoorthee/pursledger/internal/params"
)

type fakeAPI struct {
	executed  []*rdsdata.ExecuteStatementInput
	batched   []*rdsdata.BatchExecuteStatementInput
	committed []string
	execErr   error
	commitErr error
}

func (f *fakeAPI) ExecuteStatement(_ context.Context, in *rdsdata.ExecuteStatementInput, _ ...func(*rdsdata.Options)) (*rdsdata.ExecuteStatementOutput, error) {
	f.executed = append(f.executed, in)
	if f.execErr != nil {
		return nil, f.execErr
	}
	return &rdsdata.ExecuteStatementOutput{}, nil
}

func (f *fakeAPI) BatchExecuteStatement(_ context.Context, in *rdsdata.BatchExecuteStatementInput, _ ...func(*rdsdata.Options)) (*rdsdata.BatchExecuteStatementOutput, error) {
	f.batched = append(f.batched, in)
	return &rdsdata.BatchExecuteStatementOutput{}, nil
}

func (f *fakeAPI) BeginTransaction(_ context.Context, _ *rdsdata.BeginTransactionInput, _ ...func(*rdsdata.Options)) (*rdsdata.BeginTransactionOutput, error) {
	return &rdsdata.BeginTransactionOutput{TransactionId: aws.String("tx-123")}, nil
}

func (f *fakeAPI) CommitTransaction(_ context.Context, in *rdsdata.CommitTransactionInput, _ ...func(*rdsdata.Options)) (*rdsdata.CommitTransactionOutput, error) {
	if f.commitErr != nil {
		return nil, f.commitErr
	}
	f.committed = append(f.committed, aws.ToString(in.TransactionId))
	return &rdsdata.CommitTransactionOutput{}, nil
}

func (f *fakeAPI) RollbackTransaction(_ context.Context, _ *rdsdata.RollbackTransactionInput, _ ...func(*rdsdata.Options)) (*rdsdata.RollbackTransactionOutput, error) {
	return &rdsdata.RollbackTransactionOutput{}, nil
}

var target = bundle.Target{Database: "purs", SecretARN: "arn:secret", ResourceARN: "arn:cluster"}

func TestSQLParameters(t *testing.T) {
	out := SQLParameters([]params.Field{
		{Name: "payerId", Value: params.BlobValue([]byte{0x01})},
		{Name: "paymentAmount", Value: params.DoubleValue(100)},
		{Name: "paymentStatus", Value: params.StringValue("completed")},
		{Name: "datePaid", Value: params.NullValue()},
	})
	require.Len(t, out, 4)

	assert.Equal(t, "payerId", aws.ToString(out[0].Name))
	assert.Equal(t, &types.FieldMemberBlobValue{Value: []byte{0x01}}, out[0].Value)
	assert.Equal(t, &types.FieldMemberDoubleValue{Value: 100}, out[1].Value)
	assert.Equal(t, &types.FieldMemberStringValue{Value: "completed"}, out[2].Value)
	assert.Equal(t, &types.FieldMemberIsNull{Value: true}, out[3].Value)
}

func TestClient_ExecuteStatement(t *testing.T) {
	api := &fakeAPI{}
	c := New(api, target, zerolog.Nop())

	out := c.ExecuteStatement(context.Background(), bundle.StatementRequest{
		TransactionID: "tx-1",
		Statement:     bundle.StmtInsertPayment,
		Parameters:    []params.Field{{Name: "paymentId", Value: params.BlobValue([]byte{0xaa})}},
	})
	require.True(t, out.OK())

	require.Len(t, api.executed, 1)
	in := api.executed[0]
	assert.Equal(t, "arn:cluster", aws.ToString(in.ResourceArn))
	assert.Equal(t, "arn:secret", aws.ToString(in.SecretArn))
	assert.Equal(t, "purs", aws.ToString(in.Database))
	assert.Equal(t, "tx-1", aws.ToString(in.TransactionId))
	assert.Contains(t, aws.ToString(in.Sql), "INSERT INTO payment")
	assert.Len(t, in.Parameters, 1)
}

func TestClient_ExecuteStatementFailureIsReported(t *testing.T) {
	api := &fakeAPI{execErr: errors.New("throttled")}
	c := New(api, target, zerolog.Nop())

	out := c.ExecuteStatement(context.Background(), bundle.StatementRequest{Statement: bundle.StmtInsertLedgerEntry})
	assert.False(t, out.OK())
	assert.EqualError(t, out.Err, "throttled")
	assert.Equal(t, bundle.StmtInsertLedgerEntry, out.Statement)
}

func TestClient_UnknownStatement(t *testing.T) {
	api := &fakeAPI{}
	c := New(api, target, zerolog.Nop())

	out := c.BatchExecuteStatement(context.Background(), bundle.BatchRequest{Statement: "nope"})
	assert.False(t, out.OK())
	assert.Empty(t, api.batched)
}

func TestClient_BatchExecuteStatement(t *testing.T) {
	api := &fakeAPI{}
	c := New(api, target, zerolog.Nop())

	sets := params.PursTransaction([]string{"01", "02"}, "ff")

	out := c.BatchExecuteStatement(context.Background(), bundle.BatchRequest{
		Target:        bundle.Target{Database: "other"},
		TransactionID: "tx-1",
		Statement:     bundle.StmtInsertPursTransaction,
		ParameterSets: sets,
	})
	require.True(t, out.OK())

	require.Len(t, api.batched, 1)
	in := api.batched[0]
	assert.Equal(t, "other", aws.ToString(in.Database))
	assert.Equal(t, "arn:cluster", aws.ToString(in.ResourceArn))
	require.Len(t, in.ParameterSets, 2)
	assert.Equal(t, &types.FieldMemberBlobValue{Value: []byte{0x02}}, in.ParameterSets[1][1].Value)
}

func TestClient_TransactionLifecycle(t *testing.T) {
	api := &fakeAPI{}
	c := New(api, target, zerolog.Nop())
	ctx := context.Background()

	token, err := c.Begin(ctx)
	require.NoError(t, err)
	assert.Equal(t, "tx-123", token)

	require.NoError(t, c.Commit(ctx, token))
	assert.Equal(t, []string{"tx-123"}, api.committed)
	require.NoError(t, c.Rollback(ctx, token))
}

func TestClient_CommitUnknownTransaction(t *testing.T) {
	api := &fakeAPI{commitErr: &types.NotFoundException{Message: aws.String("transaction tx-9 not found")}}
	c := New(api, target, zerolog.Nop())

	err := c.Commit(context.Background(), "tx-9")
	assert.ErrorIs(t, err, domain.ErrTransactionNotFound)
}
