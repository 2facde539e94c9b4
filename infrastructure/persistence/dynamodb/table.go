// Package dynamodb stores titles, ideas, paintings and references in one
// DynamoDB table.
//
// Key layout:
//
//	Title      PK TITLE#<id>                SK METADATA             GSI1 USER#<uid> / TITLE#<ts>#<id>
//	Idea       PK TITLE#<tid>               SK IDEA#<ts>#<id>       GSI1 IDEA#<id> / METADATA
//	Reference  PK TITLE#<tid> or USER#<uid> SK REFERENCE#<ts>#<id>  GSI1 REFERENCE#<id> / METADATA
//	Painting   PK PAINTING#<id>             SK METADATA             GSI1 TITLE#<tid> / PAINTING#<createdAt>#<id>
//
// Everything generation reads (title, idea log, references) is a strongly
// consistent base-table read. Paintings are keyed by their own id so status
// changes are single-item conditional writes.
package dynamodb

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"
	"go.uber.org/zap"

	pkgerrors "atelier/pkg/errors"
)

const (
	metadataSK  = "METADATA"
	gsiSortMeta = "METADATA"

	entityTitle     = "TITLE"
	entityIdea      = "IDEA"
	entityPainting  = "PAINTING"
	entityReference = "REFERENCE"
)

// API is the subset of *dynamodb.Client the repositories use.
type API interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
}

// Table holds what every repository needs to reach the table.
type Table struct {
	client    API
	name      string
	indexName string
	logger    *zap.Logger
}

func NewTable(client API, tableName, indexName string, logger *zap.Logger) *Table {
	if indexName == "" {
		indexName = "GSI1"
	}
	return &Table{client: client, name: tableName, indexName: indexName, logger: logger}
}

// putNew writes item only if no item with the same PK/SK exists.
func (t *Table) putNew(ctx context.Context, entity string, item interface{}) error {
	av, err := attributevalue.MarshalMap(item)
	if err != nil {
		return pkgerrors.NewPersistenceError("marshal "+entity, err)
	}

	expr, err := expression.NewBuilder().
		WithCondition(expression.Name("PK").AttributeNotExists()).
		Build()
	if err != nil {
		return pkgerrors.NewPersistenceError("build expression", err)
	}

	_, err = t.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:                 aws.String(t.name),
		Item:                      av,
		ConditionExpression:       expr.Condition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return pkgerrors.NewConflictError(fmt.Sprintf("%s already exists", entity))
		}
		t.logger.Error("Failed to save item",
			zap.String("entityType", entity),
			zap.Error(err),
		)
		return storeError("save "+entity, err)
	}
	return nil
}

// getByKey loads one item by primary key with a strongly consistent read.
func (t *Table) getByKey(ctx context.Context, entity, pk, sk string, out interface{}) error {
	result, err := t.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(t.name),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: pk},
			"SK": &types.AttributeValueMemberS{Value: sk},
		},
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return storeError("get "+entity, err)
	}
	if result.Item == nil {
		return pkgerrors.NewNotFoundError(entityName(entity))
	}
	if err := attributevalue.UnmarshalMap(result.Item, out); err != nil {
		return pkgerrors.NewPersistenceError("unmarshal "+entity, err)
	}
	return nil
}

// getByIndex loads the single item whose GSI1 key is (gsiPK, METADATA).
func (t *Table) getByIndex(ctx context.Context, entity, gsiPK string, out interface{}) error {
	keyCond := expression.Key("GSI1PK").Equal(expression.Value(gsiPK)).
		And(expression.Key("GSI1SK").Equal(expression.Value(gsiSortMeta)))
	expr, err := expression.NewBuilder().WithKeyCondition(keyCond).Build()
	if err != nil {
		return pkgerrors.NewPersistenceError("build expression", err)
	}

	result, err := t.client.Query(ctx, &dynamodb.QueryInput{
		TableName:                 aws.String(t.name),
		IndexName:                 aws.String(t.indexName),
		KeyConditionExpression:    expr.KeyCondition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
		Limit:                     aws.Int32(1),
	})
	if err != nil {
		return storeError("get "+entity, err)
	}
	if len(result.Items) == 0 {
		return pkgerrors.NewNotFoundError(entityName(entity))
	}
	if err := attributevalue.UnmarshalMap(result.Items[0], out); err != nil {
		return pkgerrors.NewPersistenceError("unmarshal "+entity, err)
	}
	return nil
}

// queryPrefix returns every item under pk whose sort key starts with prefix,
// following pagination. Items come back in descending key order when
// newestFirst is set. An empty index queries the base table.
func (t *Table) queryPrefix(ctx context.Context, index, pkName, pk, skName, prefix string, newestFirst bool) ([]map[string]types.AttributeValue, error) {
	keyCond := expression.Key(pkName).Equal(expression.Value(pk)).
		And(expression.Key(skName).BeginsWith(prefix))
	expr, err := expression.NewBuilder().WithKeyCondition(keyCond).Build()
	if err != nil {
		return nil, pkgerrors.NewPersistenceError("build expression", err)
	}

	input := &dynamodb.QueryInput{
		TableName:                 aws.String(t.name),
		KeyConditionExpression:    expr.KeyCondition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
		ScanIndexForward:          aws.Bool(!newestFirst),
	}
	if index != "" {
		input.IndexName = aws.String(index)
	} else {
		input.ConsistentRead = aws.Bool(true)
	}

	var items []map[string]types.AttributeValue
	paginator := dynamodb.NewQueryPaginator(t.client, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, storeError("query "+pk, err)
		}
		items = append(items, page.Items...)
	}
	return items, nil
}

// storeError wraps a failed DynamoDB call, tagging it with the service's
// error code when there is one.
func storeError(operation string, err error) error {
	appErr := pkgerrors.NewPersistenceError(operation, err)
	var ae smithy.APIError
	if !errors.As(err, &ae) {
		return appErr
	}
	switch ae.ErrorCode() {
	case "ProvisionedThroughputExceededException", "ThrottlingException", "RequestLimitExceeded":
		return appErr.WithCode("THROTTLED")
	case "ResourceNotFoundException":
		return appErr.WithCode("TABLE_NOT_FOUND")
	default:
		return appErr.WithCode(ae.ErrorCode())
	}
}

func entityName(entity string) string {
	switch entity {
	case entityTitle:
		return "title"
	case entityIdea:
		return "idea"
	case entityPainting:
		return "painting"
	case entityReference:
		return "reference"
	default:
		return "item"
	}
}

func titlePK(id string) string      { return "TITLE#" + id }
func userPK(id string) string       { return "USER#" + id }
func paintingPK(id string) string   { return "PAINTING#" + id }
func ideaGSI(id string) string      { return "IDEA#" + id }
func referenceGSI(id string) string { return "REFERENCE#" + id }
