package objectstore

import (
	"context"
	"io"
	"net/url"
	"strings"

	"github.com/andresuchdata/cloudpath/internal/config"
	"github.com/andresuchdata/cloudpath/internal/storage"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/pkg/errors"
)

// maxDeleteKeys is the S3 limit for one DeleteObjects request.
const maxDeleteKeys = 1000

// AWSClient implements Client with aws-sdk-go-v2.
type AWSClient struct {
	client   *s3.Client
	uploader *manager.Uploader
	bucket   string
}

// NewAWSClient creates an S3 client from the object store config. Static
// keys are used when set, otherwise the default AWS credential chain.
func NewAWSClient(ctx context.Context, cfg config.ObjectStoreConfig) (*AWSClient, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, errors.Wrap(err, "load aws config")
	}

	var baseEndpoint string
	if cfg.Endpoint != "" && !strings.Contains(cfg.Endpoint, "amazonaws.com") {
		baseEndpoint, _, _, err = normalizeEndpoint(cfg.Endpoint, cfg.UseSSL)
		if err != nil {
			return nil, err
		}
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if baseEndpoint != "" {
			o.BaseEndpoint = aws.String(baseEndpoint)
		}
		o.UsePathStyle = cfg.ForcePathStyle
	})

	return &AWSClient{
		client:   client,
		uploader: manager.NewUploader(client),
		bucket:   cfg.Bucket,
	}, nil
}

func (c *AWSClient) List(ctx context.Context, prefix string, recursive bool) ([]Entry, error) {
	in := &s3.ListObjectsV2Input{
		Bucket: aws.String(c.bucket),
		Prefix: aws.String(prefix),
	}
	if !recursive {
		in.Delimiter = aws.String("/")
	}

	var entries []Entry
	p := s3.NewListObjectsV2Paginator(c.client, in)
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, errors.Wrap(awsErr(err), "list objects")
		}
		for _, cp := range page.CommonPrefixes {
			entries = append(entries, Entry{Key: aws.ToString(cp.Prefix), IsPrefix: true})
		}
		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			entries = append(entries, Entry{
				Key:        key,
				Size:       aws.ToInt64(obj.Size),
				ETag:       aws.ToString(obj.ETag),
				ModifiedAt: aws.ToTime(obj.LastModified),
				IsPrefix:   strings.HasSuffix(key, "/"),
			})
		}
	}
	return entries, nil
}

func (c *AWSClient) Stat(ctx context.Context, key string) (Entry, error) {
	out, err := c.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return Entry{}, awsErr(err)
	}
	return Entry{
		Key:        key,
		Size:       aws.ToInt64(out.ContentLength),
		ETag:       aws.ToString(out.ETag),
		ModifiedAt: aws.ToTime(out.LastModified),
	}, nil
}

func (c *AWSClient) Copy(ctx context.Context, srcKey, dstKey string) error {
	_, err := c.client.CopyObject(ctx, &s3.CopyObjectInput{
		Bucket:     aws.String(c.bucket),
		CopySource: aws.String(copySource(c.bucket, srcKey)),
		Key:        aws.String(dstKey),
	})
	return awsErr(err)
}

func (c *AWSClient) Remove(ctx context.Context, key string) error {
	_, err := c.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	})
	return awsErr(err)
}

func (c *AWSClient) RemoveMany(ctx context.Context, keys []string) error {
	for start := 0; start < len(keys); start += maxDeleteKeys {
		end := min(start+maxDeleteKeys, len(keys))

		ids := make([]types.ObjectIdentifier, 0, end-start)
		for _, key := range keys[start:end] {
			ids = append(ids, types.ObjectIdentifier{Key: aws.String(key)})
		}

		out, err := c.client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
			Bucket: aws.String(c.bucket),
			Delete: &types.Delete{Objects: ids, Quiet: aws.Bool(true)},
		})
		if err != nil {
			return awsErr(err)
		}
		if len(out.Errors) > 0 {
			first := out.Errors[0]
			return errors.Errorf("remove %s: %s: %s (%d failed)",
				aws.ToString(first.Key), aws.ToString(first.Code), aws.ToString(first.Message), len(out.Errors))
		}
	}
	return nil
}

func (c *AWSClient) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	out, err := c.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, awsErr(err)
	}
	return out.Body, nil
}

func (c *AWSClient) Put(ctx context.Context, key string, r io.Reader, _ int64) (string, error) {
	out, err := c.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(c.bucket),
		Key:         aws.String(key),
		Body:        r,
		ContentType: aws.String(contentType(key)),
	})
	if err != nil {
		return "", awsErr(err)
	}
	return out.Location, nil
}

func (c *AWSClient) GetTagging(ctx context.Context, key string) (storage.TagSet, error) {
	out, err := c.client.GetObjectTagging(ctx, &s3.GetObjectTaggingInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, awsErr(err)
	}
	set := make(storage.TagSet, 0, len(out.TagSet))
	for _, t := range out.TagSet {
		set = append(set, storage.Tag{Key: aws.ToString(t.Key), Value: aws.ToString(t.Value)})
	}
	return set, nil
}

func (c *AWSClient) PutTagging(ctx context.Context, key string, set storage.TagSet) error {
	tagSet := make([]types.Tag, 0, len(set))
	for _, t := range set {
		tagSet = append(tagSet, types.Tag{Key: aws.String(t.Key), Value: aws.String(t.Value)})
	}
	_, err := c.client.PutObjectTagging(ctx, &s3.PutObjectTaggingInput{
		Bucket:  aws.String(c.bucket),
		Key:     aws.String(key),
		Tagging: &types.Tagging{TagSet: tagSet},
	})
	return awsErr(err)
}

func (c *AWSClient) Close() error {
	return nil
}

// copySource URL-encodes bucket/key segment by segment, keeping the slashes.
func copySource(bucket, key string) string {
	parts := strings.Split(key, "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return bucket + "/" + strings.Join(parts, "/")
}

func awsErr(err error) error {
	if err == nil {
		return nil
	}
	var nsk *types.NoSuchKey
	var nf *types.NotFound
	if errors.As(err, &nsk) || errors.As(err, &nf) {
		return errors.Wrap(storage.ErrNotFound, err.Error())
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound":
			return errors.Wrap(storage.ErrNotFound, apiErr.ErrorMessage())
		}
	}
	return err
}

var _ Client = (*AWSClient)(nil)
