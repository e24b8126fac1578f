package archive

import (
	"bytes"
	"fmt"

	storage_go "github.com/supabase-community/storage-go"
	"github.com/supabase-community/supabase-go"
)

// SupabaseStorage implements Uploader using Supabase's Storage API.
type SupabaseStorage struct {
	client *supabase.Client
	bucket string
}

// NewSupabaseStorage constructs a storage client for the given project.
func NewSupabaseStorage(baseURL, serviceKey, bucket string) (*SupabaseStorage, error) {
	client, err := supabase.NewClient(baseURL, serviceKey, &supabase.ClientOptions{})
	if err != nil {
		return nil, fmt.Errorf("archive: create supabase client: %w", err)
	}
	return &SupabaseStorage{client: client, bucket: bucket}, nil
}

func (s *SupabaseStorage) Upload(objectKey string, contentType string, body []byte) error {
	cacheControl := "3600"
	upsert := true // re-finishing a turn overwrites its earlier object
	opts := storage_go.FileOptions{
		ContentType:  &contentType,
		CacheControl: &cacheControl,
		Upsert:       &upsert,
	}
	_, err := s.client.Storage.UploadFile(s.bucket, objectKey, bytes.NewReader(body), opts)
	if err != nil {
		return fmt.Errorf("archive: upload to supabase: %w", err)
	}
	return nil
}
