package gateway

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
)

// AWSProvider reads credentials from the vault on every Retrieve, so a
// logout or expiry takes effect on the next signed request.
type AWSProvider struct {
	Source Source
}

var _ aws.CredentialsProvider = (*AWSProvider)(nil)

// Retrieve implements aws.CredentialsProvider.
func (p *AWSProvider) Retrieve(ctx context.Context) (aws.Credentials, error) {
	c, err := current(ctx, p.Source)
	if err != nil {
		return aws.Credentials{}, err
	}
	creds := aws.Credentials{
		AccessKeyID:     c.AccessKeyID,
		SecretAccessKey: c.SecretAccessKey,
		SessionToken:    c.SessionToken,
		Source:          "bucketvault",
	}
	if c.ExpiresAt != nil {
		creds.CanExpire = true
		creds.Expires = *c.ExpiresAt
	}
	return creds, nil
}

// AWSConfig returns an aws.Config for region backed by the vault.
// Use it with any aws-sdk-go-v2 service client.
func AWSConfig(src Source, region string) aws.Config {
	return aws.Config{
		Region:      region,
		Credentials: &AWSProvider{Source: src},
	}
}
