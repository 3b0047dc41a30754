package vector

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/weaviate/weaviate/entities/models"
)

type fakeSchemaClient struct {
	exists  bool
	class   *models.Class
	created *models.Class
	added   []*models.Property
}

func (f *fakeSchemaClient) ClassExists(ctx context.Context, className string) (bool, error) {
	return f.exists, nil
}

func (f *fakeSchemaClient) CreateClass(ctx context.Context, class *models.Class) error {
	f.created = class
	return nil
}

func (f *fakeSchemaClient) GetClass(ctx context.Context, className string) (*models.Class, error) {
	return f.class, nil
}

func (f *fakeSchemaClient) AddProperty(ctx context.Context, className string, property *models.Property) error {
	f.added = append(f.added, property)
	return nil
}

func TestEnsureSchema(t *testing.T) {
	t.Run("Creates class when missing", func(t *testing.T) {
		client := &fakeSchemaClient{exists: false}
		require.NoError(t, EnsureSchema(context.Background(), client))

		require.NotNil(t, client.created)
		assert.Equal(t, ClassName, client.created.Class)
		assert.Equal(t, "none", client.created.Vectorizer, "vectors come from the pipeline, not Weaviate")

		names := make([]string, 0, len(client.created.Properties))
		for _, p := range client.created.Properties {
			names = append(names, p.Name)
		}
		assert.ElementsMatch(t, []string{"content", "searchText", "documentId", "ownerId", "docName", "chunkIndex", "charCount", "wordCount"}, names)
	})

	t.Run("Adds only missing properties to existing class", func(t *testing.T) {
		client := &fakeSchemaClient{
			exists: true,
			class: &models.Class{
				Class: ClassName,
				Properties: []*models.Property{
					{Name: "content"},
					{Name: "documentId"},
					{Name: "ownerId"},
					{Name: "docName"},
					{Name: "chunkIndex"},
					{Name: "charCount"},
					{Name: "wordCount"},
				},
			},
		}
		require.NoError(t, EnsureSchema(context.Background(), client))

		assert.Nil(t, client.created)
		require.Len(t, client.added, 1)
		assert.Equal(t, "searchText", client.added[0].Name)
	})

	t.Run("Complete class untouched", func(t *testing.T) {
		client := &fakeSchemaClient{
			exists: true,
			class: &models.Class{
				Class: ClassName,
				Properties: []*models.Property{
					{Name: "content"}, {Name: "searchText"}, {Name: "documentId"}, {Name: "ownerId"},
					{Name: "docName"}, {Name: "chunkIndex"}, {Name: "charCount"}, {Name: "wordCount"},
				},
			},
		}
		require.NoError(t, EnsureSchema(context.Background(), client))
		assert.Nil(t, client.created)
		assert.Empty(t, client.added)
	})
}
