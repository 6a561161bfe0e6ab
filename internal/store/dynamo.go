package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

const (
	emailIndex = "email-index"
	tokenIndex = "token-index"
	l1Index    = "l1-index"
)

func isConditionalFailure(err error) bool {
	var ccf *types.ConditionalCheckFailedException
	if errors.As(err, &ccf) {
		return true
	}
	var canceled *types.TransactionCanceledException
	if errors.As(err, &canceled) {
		for _, reason := range canceled.CancellationReasons {
			if aws.ToString(reason.Code) == "ConditionalCheckFailed" {
				return true
			}
		}
	}
	return false
}

// DynamoSubscriberStore implements SubscriberStore on DynamoDB.
type DynamoSubscriberStore struct {
	client *dynamodb.Client
	table  string
}

// NewDynamoSubscriberStore creates the subscribers table accessor.
func NewDynamoSubscriberStore(cfg aws.Config, table string) *DynamoSubscriberStore {
	return &DynamoSubscriberStore{client: dynamodb.NewFromConfig(cfg), table: table}
}

// emailGuardID keys the uniqueness item for an address. The guard
// carries no email or status attribute, so it stays out of the GSIs
// and the status scan.
func emailGuardID(email string) string {
	return "email#" + email
}

// PutIfAbsent creates the subscriber row together with a uniqueness
// guard keyed by the normalized email, in one transaction. The row ID
// is freshly minted, so only the guard can collide: a second writer
// for the same address gets ErrConditionalFailed regardless of which
// IDs the racers chose.
func (s *DynamoSubscriberStore) PutIfAbsent(ctx context.Context, sub *Subscriber) error {
	av, err := attributevalue.MarshalMap(sub)
	if err != nil {
		return fmt.Errorf("marshaling subscriber: %w", err)
	}
	_, err = s.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: []types.TransactWriteItem{
			{Put: &types.Put{
				TableName:           aws.String(s.table),
				Item:                av,
				ConditionExpression: aws.String("attribute_not_exists(subscriber_id)"),
			}},
			{Put: &types.Put{
				TableName: aws.String(s.table),
				Item: map[string]types.AttributeValue{
					"subscriber_id": &types.AttributeValueMemberS{Value: emailGuardID(sub.Email)},
					"owner_id":      &types.AttributeValueMemberS{Value: sub.ID},
				},
				ConditionExpression: aws.String("attribute_not_exists(subscriber_id)"),
			}},
		},
	})
	if isConditionalFailure(err) {
		return ErrConditionalFailed
	}
	if err != nil {
		return fmt.Errorf("putting subscriber: %w", err)
	}
	return nil
}

// UpdateIfUnchanged replaces the row only if updated_at still matches
// prevUpdatedAt, so concurrent transitions serialize per subscriber.
func (s *DynamoSubscriberStore) UpdateIfUnchanged(ctx context.Context, sub *Subscriber, prevUpdatedAt string) error {
	av, err := attributevalue.MarshalMap(sub)
	if err != nil {
		return fmt.Errorf("marshaling subscriber: %w", err)
	}
	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(s.table),
		Item:                av,
		ConditionExpression: aws.String("updated_at = :prev"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":prev": &types.AttributeValueMemberS{Value: prevUpdatedAt},
		},
	})
	if isConditionalFailure(err) {
		return ErrConditionalFailed
	}
	if err != nil {
		return fmt.Errorf("updating subscriber: %w", err)
	}
	return nil
}

// Get reads a subscriber by ID.
func (s *DynamoSubscriberStore) Get(ctx context.Context, id string) (*Subscriber, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.table),
		Key: map[string]types.AttributeValue{
			"subscriber_id": &types.AttributeValueMemberS{Value: id},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("getting subscriber %s: %w", id, err)
	}
	if out.Item == nil {
		return nil, ErrNotFound
	}
	var sub Subscriber
	if err := attributevalue.UnmarshalMap(out.Item, &sub); err != nil {
		return nil, fmt.Errorf("unmarshaling subscriber: %w", err)
	}
	return &sub, nil
}

// GetByEmail queries the email-index GSI. When multiple rows exist for
// one email (historical inactive rows), the non-inactive row wins.
func (s *DynamoSubscriberStore) GetByEmail(ctx context.Context, email string) (*Subscriber, error) {
	subs, err := s.queryIndex(ctx, emailIndex, "email = :v", email)
	if err != nil {
		return nil, err
	}
	if len(subs) == 0 {
		return nil, ErrNotFound
	}
	for _, sub := range subs {
		if sub.Status != StatusInactive {
			return sub, nil
		}
	}
	return subs[0], nil
}

// GetByToken queries the sparse token-index GSI.
func (s *DynamoSubscriberStore) GetByToken(ctx context.Context, token string) (*Subscriber, error) {
	subs, err := s.queryIndex(ctx, tokenIndex, "verification_token = :v", token)
	if err != nil {
		return nil, err
	}
	if len(subs) == 0 {
		return nil, ErrNotFound
	}
	return subs[0], nil
}

func (s *DynamoSubscriberStore) queryIndex(ctx context.Context, index, keyCond, value string) ([]*Subscriber, error) {
	out, err := s.client.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(s.table),
		IndexName:              aws.String(index),
		KeyConditionExpression: aws.String(keyCond),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":v": &types.AttributeValueMemberS{Value: value},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("querying %s: %w", index, err)
	}
	var subs []*Subscriber
	if err := attributevalue.UnmarshalListOfMaps(out.Items, &subs); err != nil {
		return nil, fmt.Errorf("unmarshaling subscribers: %w", err)
	}
	return subs, nil
}

// ListByStatus scans for subscribers in the given status. The
// subscriber base is small enough that a filtered scan is fine.
func (s *DynamoSubscriberStore) ListByStatus(ctx context.Context, status SubscriberStatus) ([]*Subscriber, error) {
	var subs []*Subscriber
	paginator := dynamodb.NewScanPaginator(s.client, &dynamodb.ScanInput{
		TableName:        aws.String(s.table),
		FilterExpression: aws.String("#st = :v"),
		ExpressionAttributeNames: map[string]string{
			"#st": "status",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":v": &types.AttributeValueMemberS{Value: string(status)},
		},
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("scanning subscribers: %w", err)
		}
		var pageSubs []*Subscriber
		if err := attributevalue.UnmarshalListOfMaps(page.Items, &pageSubs); err != nil {
			return nil, fmt.Errorf("unmarshaling subscribers: %w", err)
		}
		subs = append(subs, pageSubs...)
	}
	return subs, nil
}

// Delete removes a subscriber row and its email guard, used for
// data-erasure requests.
func (s *DynamoSubscriberStore) Delete(ctx context.Context, id string) error {
	sub, err := s.Get(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	_, err = s.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: []types.TransactWriteItem{
			{Delete: &types.Delete{
				TableName: aws.String(s.table),
				Key: map[string]types.AttributeValue{
					"subscriber_id": &types.AttributeValueMemberS{Value: id},
				},
			}},
			{Delete: &types.Delete{
				TableName: aws.String(s.table),
				Key: map[string]types.AttributeValue{
					"subscriber_id": &types.AttributeValueMemberS{Value: emailGuardID(sub.Email)},
				},
			}},
		},
	})
	if err != nil {
		return fmt.Errorf("deleting subscriber %s: %w", id, err)
	}
	return nil
}

// DynamoClassificationStore implements ClassificationStore on DynamoDB.
type DynamoClassificationStore struct {
	client *dynamodb.Client
	table  string
}

// NewDynamoClassificationStore creates the classifications table
// accessor.
func NewDynamoClassificationStore(cfg aws.Config, table string) *DynamoClassificationStore {
	return &DynamoClassificationStore{client: dynamodb.NewFromConfig(cfg), table: table}
}

// PutIfAbsent writes the record unless the (tweet_id, version) key
// already exists.
func (s *DynamoClassificationStore) PutIfAbsent(ctx context.Context, rec *ClassificationRecord) error {
	av, err := attributevalue.MarshalMap(rec)
	if err != nil {
		return fmt.Errorf("marshaling classification: %w", err)
	}
	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(s.table),
		Item:                av,
		ConditionExpression: aws.String("attribute_not_exists(tweet_id)"),
	})
	if isConditionalFailure(err) {
		return ErrConditionalFailed
	}
	if err != nil {
		return fmt.Errorf("putting classification: %w", err)
	}
	return nil
}

// Get reads one classification row.
func (s *DynamoClassificationStore) Get(ctx context.Context, tweetID, version string) (*ClassificationRecord, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.table),
		Key:       classificationKey(tweetID, version),
	})
	if err != nil {
		return nil, fmt.Errorf("getting classification %s: %w", tweetID, err)
	}
	if out.Item == nil {
		return nil, ErrNotFound
	}
	var rec ClassificationRecord
	if err := attributevalue.UnmarshalMap(out.Item, &rec); err != nil {
		return nil, fmt.Errorf("unmarshaling classification: %w", err)
	}
	return &rec, nil
}

// GetBatch reads classification rows for the given tweet IDs via
// BatchGetItem, chunked at the API's 100-key limit. Missing IDs are
// absent from the result.
func (s *DynamoClassificationStore) GetBatch(ctx context.Context, tweetIDs []string, version string) (map[string]*ClassificationRecord, error) {
	result := make(map[string]*ClassificationRecord, len(tweetIDs))
	const chunkSize = 100

	for start := 0; start < len(tweetIDs); start += chunkSize {
		end := start + chunkSize
		if end > len(tweetIDs) {
			end = len(tweetIDs)
		}
		keys := make([]map[string]types.AttributeValue, 0, end-start)
		for _, id := range tweetIDs[start:end] {
			keys = append(keys, classificationKey(id, version))
		}

		request := map[string]types.KeysAndAttributes{
			s.table: {Keys: keys},
		}
		for len(request) > 0 {
			out, err := s.client.BatchGetItem(ctx, &dynamodb.BatchGetItemInput{
				RequestItems: request,
			})
			if err != nil {
				return nil, fmt.Errorf("batch getting classifications: %w", err)
			}
			for _, item := range out.Responses[s.table] {
				var rec ClassificationRecord
				if err := attributevalue.UnmarshalMap(item, &rec); err != nil {
					return nil, fmt.Errorf("unmarshaling classification: %w", err)
				}
				result[rec.TweetID] = &rec
			}
			request = out.UnprocessedKeys
		}
	}
	return result, nil
}

// QueryByL1 reads the l1-index GSI, used for analytics.
func (s *DynamoClassificationStore) QueryByL1(ctx context.Context, l1 string) ([]*ClassificationRecord, error) {
	out, err := s.client.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(s.table),
		IndexName:              aws.String(l1Index),
		KeyConditionExpression: aws.String("l1 = :v"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":v": &types.AttributeValueMemberS{Value: l1},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("querying %s: %w", l1Index, err)
	}
	var recs []*ClassificationRecord
	if err := attributevalue.UnmarshalListOfMaps(out.Items, &recs); err != nil {
		return nil, fmt.Errorf("unmarshaling classifications: %w", err)
	}
	return recs, nil
}

func classificationKey(tweetID, version string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"tweet_id":           &types.AttributeValueMemberS{Value: tweetID},
		"classifier_version": &types.AttributeValueMemberS{Value: version},
	}
}

// DynamoRunStore implements RunStore on DynamoDB.
type DynamoRunStore struct {
	client *dynamodb.Client
	table  string
}

// NewDynamoRunStore creates the runs table accessor.
func NewDynamoRunStore(cfg aws.Config, table string) *DynamoRunStore {
	return &DynamoRunStore{client: dynamodb.NewFromConfig(cfg), table: table}
}

// Put writes the run manifest row, replacing any previous snapshot.
func (s *DynamoRunStore) Put(ctx context.Context, rec *RunRecord) error {
	av, err := attributevalue.MarshalMap(rec)
	if err != nil {
		return fmt.Errorf("marshaling run: %w", err)
	}
	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.table),
		Item:      av,
	})
	if err != nil {
		return fmt.Errorf("putting run %s: %w", rec.RunID, err)
	}
	return nil
}

// Get reads a run manifest row.
func (s *DynamoRunStore) Get(ctx context.Context, runID string) (*RunRecord, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.table),
		Key: map[string]types.AttributeValue{
			"run_id": &types.AttributeValueMemberS{Value: runID},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("getting run %s: %w", runID, err)
	}
	if out.Item == nil {
		return nil, ErrNotFound
	}
	var rec RunRecord
	if err := attributevalue.UnmarshalMap(out.Item, &rec); err != nil {
		return nil, fmt.Errorf("unmarshaling run: %w", err)
	}
	return &rec, nil
}
