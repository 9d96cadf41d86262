package store

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
)

// azureArchiver pushes oversized proof bytes to an Azure Blob container,
// used by PGStore when ProofArchiveThresholdBytes is exceeded so the
// requests table never holds multi-megabyte aggregation proofs inline.
type azureArchiver struct {
	client    *azblob.Client
	container string
}

// NewAzureArchiver builds a BlobArchiver from a connection string and
// container name. Returns an error if the client cannot be constructed;
// callers typically treat a nil archiver as "store proofs inline only".
func NewAzureArchiver(connectionString, container string) (BlobArchiver, error) {
	client, err := azblob.NewClientFromConnectionString(connectionString, nil)
	if err != nil {
		return nil, fmt.Errorf("build azure blob client: %w", err)
	}
	return &azureArchiver{client: client, container: container}, nil
}

func (a *azureArchiver) Put(ctx context.Context, key string, data []byte) (string, error) {
	_, err := a.client.UploadBuffer(ctx, a.container, key, data, nil)
	if err != nil {
		return "", fmt.Errorf("upload blob %s: %w", key, err)
	}
	return fmt.Sprintf("azblob://%s/%s", a.container, key), nil
}

func (a *azureArchiver) Get(ctx context.Context, uri string) ([]byte, error) {
	rest := strings.TrimPrefix(uri, "azblob://")
	parts := strings.SplitN(rest, "/", 2)
	if len(parts) != 2 {
		return nil, fmt.Errorf("malformed blob uri %s", uri)
	}
	container, key := parts[0], parts[1]

	resp, err := a.client.DownloadStream(ctx, container, key, nil)
	if err != nil {
		return nil, fmt.Errorf("download blob %s: %w", key, err)
	}
	defer resp.Body.Close()

	buf := new(bytes.Buffer)
	if _, err := io.Copy(buf, resp.Body); err != nil {
		return nil, fmt.Errorf("read blob body %s: %w", key, err)
	}
	return buf.Bytes(), nil
}
