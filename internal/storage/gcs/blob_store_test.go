package gcs

import (
	"context"
	"testing"

	"cloud.google.com/go/storage"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
)

func TestNewValidation(t *testing.T) {
	_, err := New(nil, Config{Bucket: "b"})
	require.Error(t, err)

	client, err := storage.NewClient(context.Background(), option.WithoutAuthentication())
	require.NoError(t, err)
	defer func() { _ = client.Close() }()

	_, err = New(client, Config{})
	require.Error(t, err)

	store, err := New(client, Config{Bucket: "crawl-artifacts", Prefix: "/solutions/"})
	require.NoError(t, err)
	require.Equal(t, "solutions/pdfs/a.pdf", store.ObjectName("pdfs/a.pdf"))

	bare, err := New(client, Config{Bucket: "crawl-artifacts"})
	require.NoError(t, err)
	require.Equal(t, "debug/x.html", bare.ObjectName("debug/x.html"))
}
