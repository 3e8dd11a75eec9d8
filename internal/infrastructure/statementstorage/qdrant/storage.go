// Package qdrant stores statements as points of a Qdrant collection.
//
// Every statement is one point whose id is the UUID form of the statement
// id. The statement lives in the point payload; the vector is a fixed
// placeholder because lookups only ever use exact payload filters.
package qdrant

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	pb "github.com/qdrant/go-client/qdrant"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"

	"github.com/ersonp/tidstore/internal/domain/entities"
	"github.com/ersonp/tidstore/internal/infrastructure/config"
)

// Payload keys.
const (
	keyStatementID          = "statement_id"
	keySubject              = "subject"
	keyPredicate            = "predicate"
	keyObject               = "object"
	keyValue                = "value"
	keyValueType            = "value_type"
	keyMetadata             = "metadata"
	keyCancellationID       = "cancellation_id"
	keyCancellationMetadata = "cancellation_metadata"
)

// scrollPageSize bounds the points fetched per Scroll call.
const scrollPageSize = 256

var indexedKeys = map[string]pb.FieldType{
	keyStatementID:    pb.FieldType_FieldTypeInteger,
	keySubject:        pb.FieldType_FieldTypeInteger,
	keyPredicate:      pb.FieldType_FieldTypeInteger,
	keyObject:         pb.FieldType_FieldTypeInteger,
	keyValue:          pb.FieldType_FieldTypeKeyword,
	keyValueType:      pb.FieldType_FieldTypeInteger,
	keyCancellationID: pb.FieldType_FieldTypeInteger,
}

// Storage implements ports.StatementStorage using Qdrant.
type Storage struct {
	collections pb.CollectionsClient
	points      pb.PointsClient
	collection  string
	node        uint64
	conn        *grpc.ClientConn
	logger      *zap.Logger
}

// NewStorage connects to Qdrant.
func NewStorage(cfg config.QdrantConfig, logger *zap.Logger) (*Storage, error) {
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)

	opts := []grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}
	if cfg.APIKey != "" {
		opts = append(opts, grpc.WithUnaryInterceptor(apiKeyInterceptor(cfg.APIKey)))
	}
	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("connecting to qdrant: %w", err)
	}

	s := newStorage(pb.NewCollectionsClient(conn), pb.NewPointsClient(conn), cfg.Collection, cfg.NodeID, logger)
	s.conn = conn
	return s, nil
}

func newStorage(collections pb.CollectionsClient, points pb.PointsClient, collection string, node uint64, logger *zap.Logger) *Storage {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Storage{
		collections: collections,
		points:      points,
		collection:  collection,
		node:        node,
		logger:      logger,
	}
}

func apiKeyInterceptor(key string) grpc.UnaryClientInterceptor {
	return func(ctx context.Context, method string, req, reply any, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
		return invoker(metadata.AppendToOutgoingContext(ctx, "api-key", key), method, req, reply, cc, opts...)
	}
}

// Close closes the gRPC connection.
func (s *Storage) Close() error {
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}

// DeleteCollection removes the collection and every statement in it.
func (s *Storage) DeleteCollection(ctx context.Context) error {
	_, err := s.collections.Delete(ctx, &pb.DeleteCollection{
		CollectionName: s.collection,
	})
	if err != nil {
		return fmt.Errorf("deleting collection: %w", err)
	}
	return nil
}

// EnsureCollection creates the collection and its payload indexes if the
// collection doesn't exist.
func (s *Storage) EnsureCollection(ctx context.Context) error {
	_, err := s.collections.Get(ctx, &pb.GetCollectionInfoRequest{
		CollectionName: s.collection,
	})
	if err == nil {
		return nil
	}

	_, err = s.collections.Create(ctx, &pb.CreateCollection{
		CollectionName: s.collection,
		VectorsConfig: &pb.VectorsConfig{
			Config: &pb.VectorsConfig_Params{
				Params: &pb.VectorParams{
					Size:     1,
					Distance: pb.Distance_Dot,
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("creating collection: %w", err)
	}

	keys := make([]string, 0, len(indexedKeys))
	for k := range indexedKeys {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		_, err := s.points.CreateFieldIndex(ctx, &pb.CreateFieldIndexCollection{
			CollectionName: s.collection,
			Wait:           pb.PtrOf(true),
			FieldName:      k,
			FieldType:      pb.PtrOf(indexedKeys[k]),
		})
		if err != nil {
			return fmt.Errorf("creating index on %s: %w", k, err)
		}
	}
	s.logger.Info("qdrant collection created", zap.String("collection", s.collection))
	return nil
}

// StoreStatement upserts the point of one statement.
func (s *Storage) StoreStatement(ctx context.Context, st entities.Statement) error {
	point, err := s.statementToPoint(st)
	if err != nil {
		return err
	}
	_, err = s.points.Upsert(ctx, &pb.UpsertPoints{
		CollectionName: s.collection,
		Wait:           pb.PtrOf(true),
		Points:         []*pb.PointStruct{point},
	})
	if err != nil {
		return fmt.Errorf("upserting statement %d: %w", st.ID, err)
	}
	return nil
}

// CancelStatement sets the cancellation payload of an active statement.
func (s *Storage) CancelStatement(
	ctx context.Context,
	statementID, cancellationID entities.Tid,
	md entities.Metadata,
) error {
	st, err := s.RetrieveStatement(ctx, statementID)
	if err != nil {
		return err
	}
	if st.IsCancelled() {
		return fmt.Errorf("statement %d: %w", statementID, entities.ErrStatementAlreadyCancelled)
	}
	return s.setCancellation(ctx, statementID, cancellationID, md)
}

// RetrieveStatement fetches one statement by id.
func (s *Storage) RetrieveStatement(ctx context.Context, statementID entities.Tid) (entities.Statement, error) {
	resp, err := s.points.Get(ctx, &pb.GetPoints{
		CollectionName: s.collection,
		Ids:            []*pb.PointId{s.pointID(statementID)},
		WithPayload: &pb.WithPayloadSelector{
			SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true},
		},
		WithVectors: &pb.WithVectorsSelector{
			SelectorOptions: &pb.WithVectorsSelector_Enable{Enable: false},
		},
	})
	if err != nil {
		return entities.Statement{}, fmt.Errorf("getting statement %d: %w", statementID, err)
	}
	if len(resp.Result) == 0 {
		return entities.Statement{}, fmt.Errorf("statement %d: %w", statementID, entities.ErrStatementNotFound)
	}
	return pointToStatement(resp.Result[0].Payload)
}

// FindStatements scrolls through every matching point and returns the
// statements ordered by id.
func (s *Storage) FindStatements(ctx context.Context, q entities.StatementQuery) ([]entities.Statement, error) {
	filter := queryFilter(q)

	var (
		out    []entities.Statement
		offset *pb.PointId
	)
	for {
		resp, err := s.points.Scroll(ctx, &pb.ScrollPoints{
			CollectionName: s.collection,
			Filter:         filter,
			Offset:         offset,
			Limit:          pb.PtrOf(uint32(scrollPageSize)),
			WithPayload: &pb.WithPayloadSelector{
				SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true},
			},
			WithVectors: &pb.WithVectorsSelector{
				SelectorOptions: &pb.WithVectorsSelector_Enable{Enable: false},
			},
		})
		if err != nil {
			return nil, fmt.Errorf("scrolling statements: %w", err)
		}
		for _, point := range resp.Result {
			st, err := pointToStatement(point.Payload)
			if err != nil {
				return nil, err
			}
			out = append(out, st)
		}
		if resp.NextPageOffset == nil {
			break
		}
		offset = resp.NextPageOffset
	}

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// StoreBatch applies the commands in order. Qdrant has no transactions, so
// when a command fails the ones before it are reverted.
func (s *Storage) StoreBatch(ctx context.Context, cmds []entities.Command) error {
	for i, cmd := range cmds {
		var err error
		switch cmd.Op {
		case entities.OpMakeStatement:
			err = s.StoreStatement(ctx, cmd.Statement())
		case entities.OpCancelStatement:
			err = s.CancelStatement(ctx, cmd.StatementID, cmd.CancellationID, cmd.Metadata)
		default:
			err = fmt.Errorf("%w: unknown command %q", entities.ErrInvalidStatement, cmd.Op)
		}
		if err == nil {
			continue
		}
		if rvErr := s.RevertBatch(ctx, cmds[:i]); rvErr != nil {
			s.logger.Error("reverting partial batch failed", zap.Int("applied", i), zap.Error(rvErr))
			err = errors.Join(err, rvErr)
		}
		return &entities.BatchError{Index: i, Op: cmd.Op, Err: err}
	}
	return nil
}

// RevertBatch undoes the commands in reverse order.
func (s *Storage) RevertBatch(ctx context.Context, cmds []entities.Command) error {
	for i := len(cmds) - 1; i >= 0; i-- {
		cmd := cmds[i]
		switch cmd.Op {
		case entities.OpMakeStatement:
			_, err := s.points.Delete(ctx, &pb.DeletePoints{
				CollectionName: s.collection,
				Wait:           pb.PtrOf(true),
				Points: &pb.PointsSelector{
					PointsSelectorOneOf: &pb.PointsSelector_Points{
						Points: &pb.PointsIdsList{Ids: []*pb.PointId{s.pointID(cmd.StatementID)}},
					},
				},
			})
			if err != nil {
				return fmt.Errorf("reverting statement %d: %w", cmd.StatementID, err)
			}
		case entities.OpCancelStatement:
			st, err := s.RetrieveStatement(ctx, cmd.StatementID)
			if errors.Is(err, entities.ErrStatementNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			if st.CancellationID != cmd.CancellationID {
				continue
			}
			if err := s.setCancellation(ctx, cmd.StatementID, 0, nil); err != nil {
				return fmt.Errorf("reverting cancellation of %d: %w", cmd.StatementID, err)
			}
		}
	}
	return nil
}

func (s *Storage) setCancellation(ctx context.Context, statementID, cancellationID entities.Tid, md entities.Metadata) error {
	mdJSON, err := encodeMetadata(md)
	if err != nil {
		return err
	}
	_, err = s.points.SetPayload(ctx, &pb.SetPayloadPoints{
		CollectionName: s.collection,
		Wait:           pb.PtrOf(true),
		Payload: map[string]*pb.Value{
			keyCancellationID:       {Kind: &pb.Value_IntegerValue{IntegerValue: int64(cancellationID)}},
			keyCancellationMetadata: {Kind: &pb.Value_StringValue{StringValue: mdJSON}},
		},
		PointsSelector: &pb.PointsSelector{
			PointsSelectorOneOf: &pb.PointsSelector_Points{
				Points: &pb.PointsIdsList{Ids: []*pb.PointId{s.pointID(statementID)}},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("setting cancellation of %d: %w", statementID, err)
	}
	return nil
}

func (s *Storage) pointID(id entities.Tid) *pb.PointId {
	return &pb.PointId{
		PointIdOptions: &pb.PointId_Uuid{Uuid: id.UUID(s.node).String()},
	}
}

func (s *Storage) statementToPoint(st entities.Statement) (*pb.PointStruct, error) {
	mdJSON, err := encodeMetadata(st.Metadata)
	if err != nil {
		return nil, err
	}
	cmdJSON, err := encodeMetadata(st.CancellationMetadata)
	if err != nil {
		return nil, err
	}

	var object int64
	if t, ok := st.Object.Entity(); ok {
		object = int64(t)
	}

	return &pb.PointStruct{
		Id: s.pointID(st.ID),
		Vectors: &pb.Vectors{
			VectorsOptions: &pb.Vectors_Vector{
				Vector: &pb.Vector{Data: []float32{1}},
			},
		},
		Payload: map[string]*pb.Value{
			keyStatementID:          {Kind: &pb.Value_IntegerValue{IntegerValue: int64(st.ID)}},
			keySubject:              {Kind: &pb.Value_IntegerValue{IntegerValue: int64(st.Subject)}},
			keyPredicate:            {Kind: &pb.Value_IntegerValue{IntegerValue: int64(st.Predicate)}},
			keyObject:               {Kind: &pb.Value_IntegerValue{IntegerValue: object}},
			keyValue:                {Kind: &pb.Value_StringValue{StringValue: st.Object.Literal()}},
			keyValueType:            {Kind: &pb.Value_IntegerValue{IntegerValue: int64(st.Object.Kind())}},
			keyMetadata:             {Kind: &pb.Value_StringValue{StringValue: mdJSON}},
			keyCancellationID:       {Kind: &pb.Value_IntegerValue{IntegerValue: int64(st.CancellationID)}},
			keyCancellationMetadata: {Kind: &pb.Value_StringValue{StringValue: cmdJSON}},
		},
	}, nil
}

func pointToStatement(payload map[string]*pb.Value) (entities.Statement, error) {
	id := entities.Tid(getIntValue(payload, keyStatementID))

	var obj entities.Object
	kind := entities.ObjectKind(getIntValue(payload, keyValueType))
	if kind == entities.ObjectEntity {
		obj = entities.EntityObject(entities.Tid(getIntValue(payload, keyObject)))
	} else {
		var err error
		obj, err = entities.LiteralObject(kind, getStringValue(payload, keyValue))
		if err != nil {
			return entities.Statement{}, fmt.Errorf("statement %d: %w", id, err)
		}
	}

	md, err := decodeMetadata(getStringValue(payload, keyMetadata))
	if err != nil {
		return entities.Statement{}, fmt.Errorf("statement %d: %w", id, err)
	}
	st := entities.Statement{
		ID:             id,
		Subject:        entities.Tid(getIntValue(payload, keySubject)),
		Predicate:      entities.Tid(getIntValue(payload, keyPredicate)),
		Object:         obj,
		Metadata:       md,
		CancellationID: entities.Tid(getIntValue(payload, keyCancellationID)),
	}
	if st.IsCancelled() {
		st.CancellationMetadata, err = decodeMetadata(getStringValue(payload, keyCancellationMetadata))
		if err != nil {
			return entities.Statement{}, fmt.Errorf("statement %d: %w", id, err)
		}
	}
	return st, nil
}

func queryFilter(q entities.StatementQuery) *pb.Filter {
	var must []*pb.Condition
	if q.Subject != 0 {
		must = append(must, matchInteger(keySubject, int64(q.Subject)))
	}
	if q.Predicate != 0 {
		must = append(must, matchInteger(keyPredicate, int64(q.Predicate)))
	}
	if !q.Object.IsZero() {
		must = append(must, matchInteger(keyValueType, int64(q.Object.Kind())))
		if t, ok := q.Object.Entity(); ok {
			must = append(must, matchInteger(keyObject, int64(t)))
		} else {
			must = append(must, matchKeyword(keyValue, q.Object.Literal()))
		}
	}
	if !q.IncludeCancelled {
		must = append(must, matchInteger(keyCancellationID, 0))
	}
	return &pb.Filter{Must: must}
}

func matchInteger(key string, v int64) *pb.Condition {
	return &pb.Condition{
		ConditionOneOf: &pb.Condition_Field{
			Field: &pb.FieldCondition{
				Key: key,
				Match: &pb.Match{
					MatchValue: &pb.Match_Integer{Integer: v},
				},
			},
		},
	}
}

func matchKeyword(key, v string) *pb.Condition {
	return &pb.Condition{
		ConditionOneOf: &pb.Condition_Field{
			Field: &pb.FieldCondition{
				Key: key,
				Match: &pb.Match{
					MatchValue: &pb.Match_Keyword{Keyword: v},
				},
			},
		},
	}
}

func encodeMetadata(md entities.Metadata) (string, error) {
	if len(md) == 0 {
		return "", nil
	}
	data, err := json.Marshal(md)
	if err != nil {
		return "", fmt.Errorf("encoding metadata: %w", err)
	}
	return string(data), nil
}

func decodeMetadata(s string) (entities.Metadata, error) {
	if s == "" {
		return nil, nil
	}
	var md entities.Metadata
	if err := json.Unmarshal([]byte(s), &md); err != nil {
		return nil, fmt.Errorf("decoding metadata: %w", err)
	}
	return md, nil
}

// Helper functions for payload extraction.
func getStringValue(payload map[string]*pb.Value, key string) string {
	if v, ok := payload[key]; ok {
		return v.GetStringValue()
	}
	return ""
}

func getIntValue(payload map[string]*pb.Value, key string) int64 {
	if v, ok := payload[key]; ok {
		return v.GetIntegerValue()
	}
	return 0
}
