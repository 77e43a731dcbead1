package qdrant

import (
	"context"
	"fmt"

	"github.com/qdrant/go-client/qdrant"

	"github.com/jinford/pdf-rag/internal/module/vectorstore/domain"
)

// Store はQdrantをバックエンドとするベクトルストア実装です
// コレクションはコサイン類似度で構成し、ポイントIDに冪等キーを使うため
// 同一キーのupsertは重複せず上書きになります
type Store struct {
	client     *qdrant.Client
	collection string
}

// NewStore はQdrantへのgRPC接続を確立してStoreを作成します
func NewStore(host string, port int, collection string) (*Store, error) {
	client, err := qdrant.NewClient(&qdrant.Config{
		Host: host,
		Port: port,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to qdrant at %s:%d: %w", host, port, err)
	}

	return &Store{
		client:     client,
		collection: collection,
	}, nil
}

// EnsureCollection はコレクションが存在しなければ作成します
func (s *Store) EnsureCollection(ctx context.Context, dimension int) error {
	if dimension <= 0 {
		return fmt.Errorf("invalid vector dimension: %d", dimension)
	}

	exists, err := s.client.CollectionExists(ctx, s.collection)
	if err != nil {
		return fmt.Errorf("failed to check collection %s: %w", s.collection, err)
	}
	if exists {
		return nil
	}

	err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: s.collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(dimension),
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("failed to create collection %s: %w", s.collection, err)
	}
	return nil
}

// Upsert は1レコードを書き込みます
func (s *Store) Upsert(ctx context.Context, record domain.VectorRecord) error {
	return s.UpsertBatch(ctx, []domain.VectorRecord{record})
}

// UpsertBatch は複数レコードを単一リクエストで書き込みます
// wait=trueで書き込みの完了を待つため、成功が返れば全件がコミット済み
func (s *Store) UpsertBatch(ctx context.Context, records []domain.VectorRecord) error {
	if len(records) == 0 {
		return nil
	}

	points := make([]*qdrant.PointStruct, 0, len(records))
	for _, record := range records {
		points = append(points, &qdrant.PointStruct{
			Id:      qdrant.NewID(record.ID.String()),
			Vectors: qdrant.NewVectors(record.Vector...),
			Payload: qdrant.NewValueMap(map[string]any{
				"text":           record.Payload.Text,
				"document_id":    record.Payload.DocumentID,
				"sequence_index": int64(record.Payload.SequenceIndex),
			}),
		})
	}

	_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: s.collection,
		Wait:           qdrant.PtrOf(true),
		Points:         points,
	})
	if err != nil {
		return &domain.UpsertError{Err: err}
	}
	return nil
}

// Search はクエリベクトルに類似する上位k件をスコア降順で返します
func (s *Store) Search(ctx context.Context, vector []float32, k int) ([]domain.SearchResult, error) {
	if k <= 0 {
		return nil, fmt.Errorf("k must be positive, got %d", k)
	}

	limit := uint64(k)
	points, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: s.collection,
		Query:          qdrant.NewQuery(vector...),
		Limit:          &limit,
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant query failed: %w", err)
	}

	results := make([]domain.SearchResult, 0, len(points))
	for _, point := range points {
		payload := point.GetPayload()
		results = append(results, domain.SearchResult{
			Text:          payload["text"].GetStringValue(),
			DocumentID:    payload["document_id"].GetStringValue(),
			SequenceIndex: int(payload["sequence_index"].GetIntegerValue()),
			Score:         point.GetScore(),
		})
	}
	return results, nil
}

// Close はQdrantへの接続を閉じます
func (s *Store) Close() error {
	return s.client.Close()
}

// インターフェース実装の確認
var _ domain.Store = (*Store)(nil)
