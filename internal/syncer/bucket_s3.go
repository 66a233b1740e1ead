// SPDX-FileCopyrightText: Copyright The Newshub Authors. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

package syncer // import "newshub.app/internal/syncer"

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3Bucket keeps sync updates in an S3 bucket shared by both hosts.
// Credentials and region come from the default AWS config chain.
type S3Bucket struct {
	client *s3.Client
	bucket string
}

func NewS3Bucket(ctx context.Context, bucket string) (*S3Bucket, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("syncer: load aws config: %w", err)
	}
	return &S3Bucket{client: s3.NewFromConfig(cfg), bucket: bucket}, nil
}

func (self *S3Bucket) Put(ctx context.Context, key string, data []byte,
) error {
	_, err := self.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(self.bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(data),
	})
	if err != nil {
		return fmt.Errorf("syncer: put s3 object %q: %w", key, err)
	}
	return nil
}

func (self *S3Bucket) Get(ctx context.Context, key string) ([]byte, error) {
	out, err := self.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(self.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("syncer: get s3 object %q: %w", key, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("syncer: read s3 object %q: %w", key, err)
	}
	return data, nil
}

func (self *S3Bucket) List(ctx context.Context, prefix string,
) ([]string, error) {
	var keys []string
	pages := s3.NewListObjectsV2Paginator(self.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(self.bucket),
		Prefix: aws.String(prefix),
	})
	for pages.HasMorePages() {
		page, err := pages.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("syncer: list s3 objects %q: %w",
				prefix, err)
		}
		for _, obj := range page.Contents {
			keys = append(keys, aws.ToString(obj.Key))
		}
	}
	return keys, nil
}

func (self *S3Bucket) Delete(ctx context.Context, key string) error {
	_, err := self.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(self.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("syncer: delete s3 object %q: %w", key, err)
	}
	return nil
}
