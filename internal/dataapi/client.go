// Package dataapi runs bundle statements through the RDS Data API.
//
// The SDK client is built once at process start and passed in; nothing in this
// package holds a process-wide handle.
package dataapi

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/rdsdata"
	"github.com/aws/aws-sdk-go-v2/service/rdsdata/types"
	"github.com/rs/zerolog"

	"github.com/punchamoorthee/pursledger/internal/bundle"
	"github.com/punchamoorthee/pursledger/internal/domain"
	"github.com/punchamoorthee/pursledger/internal/params"
)

// API is the subset of the RDS Data API client used here.
type API interface {
	ExecuteStatement(ctx context.Context, in *rdsdata.ExecuteStatementInput, optFns ...func(*rdsdata.Options)) (*rdsdata.ExecuteStatementOutput, error)
	BatchExecuteStatement(ctx context.Context, in *rdsdata.BatchExecuteStatementInput, optFns ...func(*rdsdata.Options)) (*rdsdata.BatchExecuteStatementOutput, error)
	BeginTransaction(ctx context.Context, in *rdsdata.BeginTransactionInput, optFns ...func(*rdsdata.Options)) (*rdsdata.BeginTransactionOutput, error)
	CommitTransaction(ctx context.Context, in *rdsdata.CommitTransactionInput, optFns ...func(*rdsdata.Options)) (*rdsdata.CommitTransactionOutput, error)
	RollbackTransaction(ctx context.Context, in *rdsdata.RollbackTransactionInput, optFns ...func(*rdsdata.Options)) (*rdsdata.RollbackTransactionOutput, error)
}

type Client struct {
	api    API
	target bundle.Target
	log    zerolog.Logger
}

// NewFromConfig loads the default AWS configuration for region and builds a Client.
func NewFromConfig(ctx context.Context, region string, target bundle.Target, log zerolog.Logger) (*Client, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return New(rdsdata.NewFromConfig(cfg), target, log), nil
}

func New(api API, target bundle.Target, log zerolog.Logger) *Client {
	return &Client{api: api, target: target, log: log}
}

// resolve fills empty members of t from the client's default target.
func (c *Client) resolve(t bundle.Target) bundle.Target {
	if t.Database == "" {
		t.Database = c.target.Database
	}
	if t.SecretARN == "" {
		t.SecretARN = c.target.SecretARN
	}
	if t.ResourceARN == "" {
		t.ResourceARN = c.target.ResourceARN
	}
	return t
}

func (c *Client) Begin(ctx context.Context) (string, error) {
	out, err := c.api.BeginTransaction(ctx, &rdsdata.BeginTransactionInput{
		ResourceArn: aws.String(c.target.ResourceARN),
		SecretArn:   aws.String(c.target.SecretARN),
		Database:    aws.String(c.target.Database),
	})
	if err != nil {
		return "", fmt.Errorf("begin transaction: %w", err)
	}
	return aws.ToString(out.TransactionId), nil
}

func (c *Client) Commit(ctx context.Context, token string) error {
	_, err := c.api.CommitTransaction(ctx, &rdsdata.CommitTransactionInput{
		ResourceArn:   aws.String(c.target.ResourceARN),
		SecretArn:     aws.String(c.target.SecretARN),
		TransactionId: aws.String(token),
	})
	if err != nil {
		return fmt.Errorf("commit transaction: %w", notFound(err))
	}
	return nil
}

func (c *Client) Rollback(ctx context.Context, token string) error {
	_, err := c.api.RollbackTransaction(ctx, &rdsdata.RollbackTransactionInput{
		ResourceArn:   aws.String(c.target.ResourceARN),
		SecretArn:     aws.String(c.target.SecretARN),
		TransactionId: aws.String(token),
	})
	if err != nil {
		return fmt.Errorf("rollback transaction: %w", notFound(err))
	}
	return nil
}

func notFound(err error) error {
	var nf *types.NotFoundException
	if errors.As(err, &nf) {
		return fmt.Errorf("%w: %s", domain.ErrTransactionNotFound, aws.ToString(nf.Message))
	}
	return err
}

// ExecuteStatement implements bundle.Executor.
func (c *Client) ExecuteStatement(ctx context.Context, req bundle.StatementRequest) bundle.Outcome {
	query, ok := statements[req.Statement]
	if !ok {
		return bundle.Failed(req.Statement, fmt.Errorf("unknown statement %q", req.Statement))
	}

	t := c.resolve(req.Target)
	_, err := c.api.ExecuteStatement(ctx, &rdsdata.ExecuteStatementInput{
		ResourceArn:   aws.String(t.ResourceARN),
		SecretArn:     aws.String(t.SecretARN),
		Database:      aws.String(t.Database),
		TransactionId: aws.String(req.TransactionID),
		Sql:           aws.String(query),
		Parameters:    SQLParameters(req.Parameters),
	})
	if err != nil {
		c.log.Debug().Err(err).Str("statement", string(req.Statement)).Msg("data api statement failed")
		return bundle.Failed(req.Statement, err)
	}
	return bundle.Succeeded(req.Statement)
}

// BatchExecuteStatement implements bundle.Executor.
func (c *Client) BatchExecuteStatement(ctx context.Context, req bundle.BatchRequest) bundle.Outcome {
	query, ok := statements[req.Statement]
	if !ok {
		return bundle.Failed(req.Statement, fmt.Errorf("unknown statement %q", req.Statement))
	}

	sets := make([][]types.SqlParameter, 0, len(req.ParameterSets))
	for _, set := range req.ParameterSets {
		sets = append(sets, SQLParameters(set))
	}

	t := c.resolve(req.Target)
	_, err := c.api.BatchExecuteStatement(ctx, &rdsdata.BatchExecuteStatementInput{
		ResourceArn:   aws.String(t.ResourceARN),
		SecretArn:     aws.String(t.SecretARN),
		Database:      aws.String(t.Database),
		TransactionId: aws.String(req.TransactionID),
		Sql:           aws.String(query),
		ParameterSets: sets,
	})
	if err != nil {
		c.log.Debug().Err(err).Str("statement", string(req.Statement)).Msg("data api batch failed")
		return bundle.Failed(req.Statement, err)
	}
	return bundle.Succeeded(req.Statement)
}

// SQLParameters converts record parameters into Data API parameters.
func SQLParameters(fields []params.Field) []types.SqlParameter {
	out := make([]types.SqlParameter, 0, len(fields))
	for _, f := range fields {
		var v types.Field
		switch f.Value.Kind {
		case params.KindBlob:
			v = &types.FieldMemberBlobValue{Value: f.Value.Blob}
		case params.KindDouble:
			v = &types.FieldMemberDoubleValue{Value: f.Value.Double}
		case params.KindString:
			v = &types.FieldMemberStringValue{Value: f.Value.String}
		default:
			v = &types.FieldMemberIsNull{Value: true}
		}
		out = append(out, types.SqlParameter{Name: aws.String(f.Name), Value: v})
	}
	return out
}
