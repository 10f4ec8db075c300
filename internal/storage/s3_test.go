package storage

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockS3 struct {
	mock.Mock
}

func (m *mockS3) PutObject(ctx context.Context, params *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	args := m.Called(ctx, params)
	out, _ := args.Get(0).(*s3.PutObjectOutput)
	return out, args.Error(1)
}

type mockPresigner struct {
	mock.Mock
}

func (m *mockPresigner) PresignGetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
	opts := s3.PresignOptions{}
	for _, fn := range optFns {
		fn(&opts)
	}
	args := m.Called(ctx, params, opts.Expires)
	req, _ := args.Get(0).(*v4.PresignedHTTPRequest)
	return req, args.Error(1)
}

func TestS3Store_Put(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name      string
		mockSetup func(m *mockS3)
		wantErr   bool
	}{
		{
			name: "success",
			mockSetup: func(m *mockS3) {
				m.On("PutObject", ctx, mock.MatchedBy(func(in *s3.PutObjectInput) bool {
					body, _ := io.ReadAll(in.Body)
					return *in.Bucket == "media" && *in.Key == "images/a.png" &&
						*in.ContentType == "image/png" && string(body) == "png"
				})).Return(&s3.PutObjectOutput{}, nil)
			},
		},
		{
			name: "error",
			mockSetup: func(m *mockS3) {
				m.On("PutObject", ctx, mock.Anything).Return(nil, errors.New("denied"))
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := &mockS3{}
			tt.mockSetup(api)
			s := newS3Store(api, &mockPresigner{}, "media", 0)

			err := s.Put(ctx, "images/a.png", []byte("png"), "image/png")
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), "failed to put object")
			} else {
				require.NoError(t, err)
			}
			api.AssertExpectations(t)
		})
	}
}

func TestS3Store_DownloadURL(t *testing.T) {
	ctx := context.Background()

	presign := &mockPresigner{}
	presign.On("PresignGetObject", ctx, mock.MatchedBy(func(in *s3.GetObjectInput) bool {
		return *in.Bucket == "media" && *in.Key == "images/a.png"
	}), time.Hour).Return(&v4.PresignedHTTPRequest{URL: "https://media.s3/images/a.png?sig"}, nil)
	presign.On("PresignGetObject", ctx, mock.Anything, time.Hour).Return(nil, errors.New("expired creds"))

	s := newS3Store(&mockS3{}, presign, "media", time.Hour)

	got, err := s.DownloadURL(ctx, "images/a.png")
	require.NoError(t, err)
	assert.Equal(t, "https://media.s3/images/a.png?sig", got)

	_, err = s.DownloadURL(ctx, "images/missing.png")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to presign object")
}
