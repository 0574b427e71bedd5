package factstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"

	"tabula/internal/database/milvus"
	"tabula/internal/models"
	"tabula/pkg/logger"
)

const (
	fieldID         = "id"
	fieldUserID     = "user_id"
	fieldFact       = "fact"
	fieldDesc       = "description"
	fieldExamples   = "examples"
	fieldMessageUID = "message_uid"
	fieldIsRelevant = "is_relevant"
	fieldCreatedAt  = "created_at"
	fieldEmbedding  = "embedding"
)

var outputFields = []string{fieldID, fieldUserID, fieldFact, fieldDesc, fieldExamples, fieldMessageUID, fieldIsRelevant, fieldCreatedAt}

// MilvusStore implements Store on a Milvus collection.
type MilvusStore struct {
	log        *logger.Logger
	client     client.Client
	collection string
	indexType  string
	dim        int
	timeout    time.Duration
}

// NewMilvusStore creates a MilvusStore over an already-connected client.
// timeout bounds every individual store call; zero disables the bound.
func NewMilvusStore(mc *milvus.Client, dim int, timeout time.Duration, log *logger.Logger) (*MilvusStore, error) {
	if mc == nil || mc.Client == nil {
		return nil, fmt.Errorf("milvus client is not initialized")
	}
	return &MilvusStore{
		log:        log,
		client:     mc.Client,
		collection: mc.Config.CollectionName,
		indexType:  mc.Config.IndexType,
		dim:        dim,
		timeout:    timeout,
	}, nil
}

func (s *MilvusStore) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.timeout)
}

// storeErr wraps a failed store call so callers can detect an unreachable
// store with errors.Is(err, models.ErrStoreUnavailable).
func storeErr(op string, err error) error {
	return fmt.Errorf("%s: %w: %v", op, models.ErrStoreUnavailable, err)
}

// Insert stores the given fact records with their embeddings. Writes go
// through Upsert so re-storing a record with the same id overwrites it
// instead of duplicating the primary key.
func (s *MilvusStore) Insert(ctx context.Context, records []models.FactRecord) error {
	if len(records) == 0 {
		return nil
	}

	cols, err := s.columnsFromRecords(records)
	if err != nil {
		return err
	}

	ctx, cancel := s.callContext(ctx)
	defer cancel()

	s.log.WithPayload(map[string]interface{}{"count": len(records)}).Debug("inserting facts into milvus")
	if _, err := s.client.Upsert(ctx, s.collection, "", cols...); err != nil {
		return storeErr("insert facts into milvus", err)
	}
	return nil
}

// Search returns the topK most similar relevant facts for the user.
func (s *MilvusStore) Search(ctx context.Context, userID string, vector []float32, topK int) ([]models.ContextItem, error) {
	filterExpr := fmt.Sprintf(`%s == "%s" and %s == true`, fieldUserID, userID, fieldIsRelevant)

	sp, err := s.searchParam()
	if err != nil {
		return nil, err
	}

	ctx, cancel := s.callContext(ctx)
	defer cancel()

	searchResults, err := s.client.Search(
		ctx, s.collection, []string{}, filterExpr, outputFields,
		[]entity.Vector{entity.FloatVector(vector)},
		fieldEmbedding, entity.COSINE, topK, sp,
	)
	if err != nil {
		return nil, storeErr("search facts in milvus", err)
	}

	var items []models.ContextItem
	for _, res := range searchResults {
		records, err := recordsFromColumns(res.Fields, res.ResultCount)
		if err != nil {
			return nil, err
		}
		for i, rec := range records {
			items = append(items, models.ContextItem{
				Record: rec,
				Score:  float64(res.Scores[i]),
			})
		}
	}
	return items, nil
}

// GetByID fetches a single fact record regardless of its relevance flag.
func (s *MilvusStore) GetByID(ctx context.Context, id string) (models.FactRecord, error) {
	expr := fmt.Sprintf(`%s == "%s"`, fieldID, id)
	records, err := s.queryRecords(ctx, expr, false)
	if err != nil {
		return models.FactRecord{}, err
	}
	if len(records) == 0 {
		return models.FactRecord{}, models.ErrNotFound
	}
	return records[0], nil
}

// SetRelevance flips the relevance flag of one fact.
func (s *MilvusStore) SetRelevance(ctx context.Context, factID string, relevant bool) error {
	expr := fmt.Sprintf(`%s == "%s"`, fieldID, factID)
	return s.setRelevance(ctx, expr, relevant)
}

// SetRelevanceByMessageUID flips the relevance flag of every fact that
// originated from the given message.
func (s *MilvusStore) SetRelevanceByMessageUID(ctx context.Context, userID, messageUID string, relevant bool) error {
	expr := fmt.Sprintf(`%s == "%s" and %s == "%s"`, fieldUserID, userID, fieldMessageUID, messageUID)
	return s.setRelevance(ctx, expr, relevant)
}

// setRelevance reads the matching records with their embeddings and upserts
// them with the flag changed. Records already carrying the requested value
// are skipped, which makes repeated application a no-op.
func (s *MilvusStore) setRelevance(ctx context.Context, expr string, relevant bool) error {
	records, err := s.queryRecords(ctx, expr, true)
	if err != nil {
		return err
	}

	changed := records[:0]
	for _, rec := range records {
		if rec.IsRelevant != relevant {
			rec.IsRelevant = relevant
			changed = append(changed, rec)
		}
	}
	if len(changed) == 0 {
		return nil
	}

	cols, err := s.columnsFromRecords(changed)
	if err != nil {
		return err
	}

	ctx, cancel := s.callContext(ctx)
	defer cancel()

	if _, err := s.client.Upsert(ctx, s.collection, "", cols...); err != nil {
		return storeErr("update relevance in milvus", err)
	}

	s.log.WithPayload(map[string]interface{}{
		"count":    len(changed),
		"relevant": relevant,
	}).Info("updated fact relevance")
	return nil
}

func (s *MilvusStore) queryRecords(ctx context.Context, expr string, withEmbedding bool) ([]models.FactRecord, error) {
	fields := outputFields
	if withEmbedding {
		fields = append(append([]string{}, outputFields...), fieldEmbedding)
	}

	ctx, cancel := s.callContext(ctx)
	defer cancel()

	rs, err := s.client.Query(ctx, s.collection, []string{}, expr, fields)
	if err != nil {
		return nil, storeErr("query facts in milvus", err)
	}

	count := 0
	if len(rs) > 0 {
		count = rs[0].Len()
	}
	return recordsFromColumns(rs, count)
}

func (s *MilvusStore) searchParam() (entity.SearchParam, error) {
	switch s.indexType {
	case "", "HNSW":
		sp, err := entity.NewIndexHNSWSearchParam(64)
		if err != nil {
			return nil, fmt.Errorf("build HNSW search param: %w", err)
		}
		return sp, nil
	case "IVF_FLAT":
		sp, err := entity.NewIndexIvfFlatSearchParam(10)
		if err != nil {
			return nil, fmt.Errorf("build IVF_FLAT search param: %w", err)
		}
		return sp, nil
	default:
		return nil, fmt.Errorf("unsupported index type: %s", s.indexType)
	}
}

func (s *MilvusStore) columnsFromRecords(records []models.FactRecord) ([]entity.Column, error) {
	n := len(records)
	ids := make([]string, n)
	userIDs := make([]string, n)
	facts := make([]string, n)
	descs := make([]string, n)
	examples := make([]string, n)
	messageUIDs := make([]string, n)
	relevants := make([]bool, n)
	createdAts := make([]int64, n)
	embeddings := make([][]float32, n)

	for i, rec := range records {
		if len(rec.Vector) != s.dim {
			return nil, fmt.Errorf("fact '%s' has vector of dim %d, want %d", rec.ID, len(rec.Vector), s.dim)
		}
		ids[i] = rec.ID
		userIDs[i] = rec.UserID
		facts[i] = rec.Fact
		descs[i] = rec.Description
		messageUIDs[i] = rec.MessageUID
		relevants[i] = rec.IsRelevant
		createdAts[i] = rec.CreatedAt.Unix()
		embeddings[i] = rec.Vector

		encoded, err := encodeExamples(rec.Examples)
		if err != nil {
			return nil, fmt.Errorf("encode examples for fact '%s': %w", rec.ID, err)
		}
		examples[i] = encoded
	}

	return []entity.Column{
		entity.NewColumnVarChar(fieldID, ids),
		entity.NewColumnVarChar(fieldUserID, userIDs),
		entity.NewColumnVarChar(fieldFact, facts),
		entity.NewColumnVarChar(fieldDesc, descs),
		entity.NewColumnVarChar(fieldExamples, examples),
		entity.NewColumnVarChar(fieldMessageUID, messageUIDs),
		entity.NewColumnBool(fieldIsRelevant, relevants),
		entity.NewColumnInt64(fieldCreatedAt, createdAts),
		entity.NewColumnFloatVector(fieldEmbedding, s.dim, embeddings),
	}, nil
}

// encodeExamples stores the example list as a JSON array in a VarChar field.
// An empty list encodes to the empty string so unfilled rows stay cheap.
func encodeExamples(examples []string) (string, error) {
	if len(examples) == 0 {
		return "", nil
	}
	data, err := json.Marshal(examples)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func decodeExamples(encoded string) []string {
	if encoded == "" {
		return nil
	}
	var examples []string
	if err := json.Unmarshal([]byte(encoded), &examples); err != nil {
		return nil
	}
	return examples
}

// recordsFromColumns rebuilds fact records from a set of result columns.
func recordsFromColumns(cols []entity.Column, count int) ([]models.FactRecord, error) {
	find := func(name string) entity.Column {
		for _, col := range cols {
			if col.Name() == name {
				return col
			}
		}
		return nil
	}

	idCol, ok := find(fieldID).(*entity.ColumnVarChar)
	if !ok {
		return nil, fmt.Errorf("result is missing id column")
	}

	var (
		userIDs, facts, descs, examples, messageUIDs []string
		relevants                                    []bool
		createdAts                                   []int64
		embeddings                                   [][]float32
	)
	if c, ok := find(fieldUserID).(*entity.ColumnVarChar); ok {
		userIDs = c.Data()
	}
	if c, ok := find(fieldFact).(*entity.ColumnVarChar); ok {
		facts = c.Data()
	}
	if c, ok := find(fieldDesc).(*entity.ColumnVarChar); ok {
		descs = c.Data()
	}
	if c, ok := find(fieldExamples).(*entity.ColumnVarChar); ok {
		examples = c.Data()
	}
	if c, ok := find(fieldMessageUID).(*entity.ColumnVarChar); ok {
		messageUIDs = c.Data()
	}
	if c, ok := find(fieldIsRelevant).(*entity.ColumnBool); ok {
		relevants = c.Data()
	}
	if c, ok := find(fieldCreatedAt).(*entity.ColumnInt64); ok {
		createdAts = c.Data()
	}
	if c, ok := find(fieldEmbedding).(*entity.ColumnFloatVector); ok {
		embeddings = c.Data()
	}

	ids := idCol.Data()
	records := make([]models.FactRecord, 0, count)
	for i := 0; i < count && i < len(ids); i++ {
		rec := models.FactRecord{ID: ids[i]}
		if i < len(userIDs) {
			rec.UserID = userIDs[i]
		}
		if i < len(facts) {
			rec.Fact = facts[i]
		}
		if i < len(descs) {
			rec.Description = descs[i]
		}
		if i < len(examples) {
			rec.Examples = decodeExamples(examples[i])
		}
		if i < len(messageUIDs) {
			rec.MessageUID = messageUIDs[i]
		}
		if i < len(relevants) {
			rec.IsRelevant = relevants[i]
		}
		if i < len(createdAts) {
			rec.CreatedAt = time.Unix(createdAts[i], 0).UTC()
		}
		if i < len(embeddings) {
			rec.Vector = embeddings[i]
		}
		records = append(records, rec)
	}
	return records, nil
}

var _ Store = (*MilvusStore)(nil)
