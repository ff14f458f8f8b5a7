package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ecr"
	"github.com/aws/aws-sdk-go-v2/service/ecr/types"
	"github.com/maverick-software/toolboxd/internal/logger"
)

// ecrDescribeAPI is the subset of the ECR client the registry service uses
type ecrDescribeAPI interface {
	DescribeImages(ctx context.Context, params *ecr.DescribeImagesInput, optFns ...func(*ecr.Options)) (*ecr.DescribeImagesOutput, error)
}

// RegistryService resolves catalog image references. References hosted in the
// platform's private ECR registry are verified to exist before a deploy is
// issued; external references pass through untouched.
type RegistryService struct {
	ecrClient ecrDescribeAPI
	region    string
	accountID string
}

// NewRegistryService creates a new registry service
func NewRegistryService(cfg aws.Config, accountID string) *RegistryService {
	return &RegistryService{
		ecrClient: ecr.NewFromConfig(cfg),
		region:    cfg.Region,
		accountID: accountID,
	}
}

// ResolveImage validates an image reference and returns the reference the
// agent should pull. For ECR-hosted references the repository/tag is verified
// via DescribeImages; absence is a hard failure (the deploy would only fail
// later on the Toolbox).
func (rs *RegistryService) ResolveImage(ctx context.Context, imageRef string) (string, error) {
	if !strings.Contains(imageRef, ".dkr.ecr.") {
		return imageRef, nil
	}

	repoName, tag, err := parseECRReference(imageRef)
	if err != nil {
		return "", err
	}

	_, err = rs.ecrClient.DescribeImages(ctx, &ecr.DescribeImagesInput{
		RepositoryName: aws.String(repoName),
		ImageIds: []types.ImageIdentifier{
			{
				ImageTag: aws.String(tag),
			},
		},
	})
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repository": repoName,
			"tag":        tag,
			"error":      err.Error(),
		}).Error("Catalog image not found in ECR")
		return "", fmt.Errorf("image %s:%s not found in registry: %w", repoName, tag, err)
	}

	return imageRef, nil
}

// parseECRReference splits an ECR image reference into repository name and tag.
// Reference format: {account}.dkr.ecr.{region}.amazonaws.com/{repo}:{tag}
func parseECRReference(imageRef string) (string, string, error) {
	slash := strings.Index(imageRef, "/")
	if slash < 0 {
		return "", "", fmt.Errorf("invalid ECR image reference: %s", imageRef)
	}

	repoAndTag := imageRef[slash+1:]
	repoName := repoAndTag
	tag := "latest"
	if colon := strings.LastIndex(repoAndTag, ":"); colon >= 0 {
		repoName = repoAndTag[:colon]
		tag = repoAndTag[colon+1:]
	}

	if repoName == "" || tag == "" {
		return "", "", fmt.Errorf("invalid ECR image reference: %s", imageRef)
	}
	return repoName, tag, nil
}
