package rotation

import (
	"bytes"
	"io"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/pkg/errors"
)

// S3Store keeps rotation files in an S3 bucket under an optional key prefix
type S3Store struct {
	s3Api  s3iface.S3API
	bucket string
	prefix string
}

// NewS3Store creates a store writing to s3://bucket/prefix/...
func NewS3Store(s3Api s3iface.S3API, bucket, prefix string) *S3Store {
	return &S3Store{s3Api: s3Api, bucket: bucket, prefix: strings.Trim(prefix, "/")}
}

func (s *S3Store) key(p string) string {
	if s.prefix == "" {
		return p
	}
	return path.Join(s.prefix, p)
}

// ListObjects calls ListObjectsV2 and keeps following continuation tokens
// until the listing is complete. Returned paths are relative to the prefix.
func (s *S3Store) ListObjects(prefix string) ([]string, error) {
	result := []string{}
	params := s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(s.key(prefix)),
	}
	if strings.HasSuffix(prefix, "/") && !strings.HasSuffix(*params.Prefix, "/") {
		params.Prefix = aws.String(*params.Prefix + "/")
	}

	for {
		listing, err := s.s3Api.ListObjectsV2(&params)
		if err != nil {
			return []string{}, err
		}

		for _, item := range listing.Contents {
			if item.Key == nil {
				continue
			}
			k := *item.Key
			if s.prefix != "" {
				k = strings.TrimPrefix(k, s.prefix+"/")
			}
			result = append(result, k)
		}

		if listing.IsTruncated != nil && *listing.IsTruncated && listing.NextContinuationToken != nil {
			params.ContinuationToken = listing.NextContinuationToken
		} else {
			break
		}
	}
	return result, nil
}

func (s *S3Store) ReadObject(p string) ([]byte, error) {
	result, err := s.s3Api.GetObject(&s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(p)),
	})
	if err != nil {
		if aerr, ok := err.(awserr.Error); ok && aerr.Code() == s3.ErrCodeNoSuchKey {
			return nil, errors.Wrap(ErrObjectNotFound, p)
		}
		return nil, err
	}
	defer result.Body.Close()
	return io.ReadAll(result.Body)
}

func (s *S3Store) WriteObject(p string, data []byte) error {
	_, err := s.s3Api.PutObject(&s3.PutObjectInput{
		Body:        bytes.NewReader(data),
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(s.key(p)),
		ContentType: aws.String("application/toml"),
	})
	return err
}
