package embeddings

import (
	"context"
	"fmt"
	"os"

	aiplatform "cloud.google.com/go/aiplatform/apiv1"
	"cloud.google.com/go/aiplatform/apiv1/aiplatformpb"
	"google.golang.org/api/option"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	vertexModel      = "text-embedding-005"
	vertexDimensions = 768
)

// VertexProvider embeds text through Vertex AI's prediction endpoint.
// It exists so the collection can be rebuilt on Google's stack without
// touching the pipeline; the provider-name guard keeps the two stacks'
// vectors from ever sharing a collection.
type VertexProvider struct {
	client    *aiplatform.PredictionClient
	modelName string
}

// NewVertexProvider creates a provider for the text-embedding-005 model.
func NewVertexProvider(ctx context.Context, projectID, location string) (*VertexProvider, error) {
	var opts []option.ClientOption
	if creds := os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"); creds != "" {
		opts = append(opts, option.WithCredentialsFile(creds))
	}

	client, err := aiplatform.NewPredictionClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create Vertex AI prediction client: %w", err)
	}

	modelName := fmt.Sprintf("projects/%s/locations/%s/publishers/google/models/%s",
		projectID, location, vertexModel)

	return &VertexProvider{client: client, modelName: modelName}, nil
}

var _ Provider = (*VertexProvider)(nil)

func (p *VertexProvider) Name() string {
	return "vertex:" + vertexModel
}

func (p *VertexProvider) Dimensions() int {
	return vertexDimensions
}

func (p *VertexProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return p.embed(ctx, texts, "RETRIEVAL_DOCUMENT")
}

func (p *VertexProvider) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := p.embed(ctx, []string{text}, "RETRIEVAL_QUERY")
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

func (p *VertexProvider) embed(ctx context.Context, texts []string, taskType string) ([][]float32, error) {
	instances := make([]*structpb.Value, len(texts))
	for i, text := range texts {
		instance, err := structpb.NewStruct(map[string]interface{}{
			"content":   text,
			"task_type": taskType,
		})
		if err != nil {
			return nil, fmt.Errorf("build instance: %w", err)
		}
		instances[i] = structpb.NewStructValue(instance)
	}

	resp, err := p.client.Predict(ctx, &aiplatformpb.PredictRequest{
		Endpoint:  p.modelName,
		Instances: instances,
	})
	if err != nil {
		return nil, fmt.Errorf("vertex embedding failed: %w", err)
	}
	if len(resp.Predictions) != len(texts) {
		return nil, fmt.Errorf("vertex embedding: got %d predictions for %d inputs", len(resp.Predictions), len(texts))
	}

	vectors := make([][]float32, len(resp.Predictions))
	for i, prediction := range resp.Predictions {
		embedding := prediction.GetStructValue().GetFields()["embeddings"].GetStructValue()
		values := embedding.GetFields()["values"].GetListValue().GetValues()
		vector := make([]float32, len(values))
		for j, v := range values {
			vector[j] = float32(v.GetNumberValue())
		}
		vectors[i] = vector
	}
	return vectors, nil
}

// Close releases the prediction client's resources.
func (p *VertexProvider) Close() error {
	return p.client.Close()
}
