// Package health implements the Bridge's pre-flight probe against the three
// pieces of ledger infrastructure it depends on: the node, the message
// indexer, and the object store used for large payload offloading.
package health

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// Options configures the three probe endpoints.
type Options struct {
	NodeURL       string
	IndexerURL    string
	ObjectBucket  string
}

// existenceCheckURI is queried against the indexer for a block that is
// known not to exist; both 200 and 400 are treated as "indexer alive" since
// the indexer validates the query shape before it looks anything up.
const existenceCheckURI = "/block/not-existing-block?checkExistence=true"

const nodeHealthURI = "/health"

// S3HeadBucketer is the subset of the S3 client Checker needs; satisfied by
// *s3.Client, narrowed here so tests can substitute a fake.
type S3HeadBucketer interface {
	HeadBucket(ctx context.Context, params *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
}

// Checker probes node, indexer, and object-store health in sequence,
// short-circuiting on the first failure.
type Checker struct {
	options Options
	http    *http.Client
	s3      S3HeadBucketer
}

// New builds a Checker. s3Client may be nil to skip the object-store probe
// (e.g. in deployments with no object-store offload configured).
func New(options Options, s3Client S3HeadBucketer) *Checker {
	return &Checker{
		options: options,
		http:    &http.Client{Timeout: 10 * time.Second},
		s3:      s3Client,
	}
}

// IsHealthy runs all configured probes. A transport-level error from any
// probe is treated as "not healthy", not as an error returned to the
// caller - the Bridge only needs to know whether to accept traffic, not
// why a probe failed (that detail is logged by the caller from the
// returned reason string).
func (c *Checker) IsHealthy(ctx context.Context) (bool, string) {
	if ok, reason := c.probeNode(ctx); !ok {
		return false, reason
	}
	if ok, reason := c.probeIndexer(ctx); !ok {
		return false, reason
	}
	if c.s3 != nil {
		if ok, reason := c.probeObjectStore(ctx); !ok {
			return false, reason
		}
	}
	return true, ""
}

func (c *Checker) probeNode(ctx context.Context) (bool, string) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.options.NodeURL+nodeHealthURI, nil)
	if err != nil {
		return false, fmt.Sprintf("node health request: %v", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return false, fmt.Sprintf("node health unreachable: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return false, fmt.Sprintf("node health returned %d", resp.StatusCode)
	}
	return true, ""
}

func (c *Checker) probeIndexer(ctx context.Context) (bool, string) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.options.IndexerURL+existenceCheckURI, nil)
	if err != nil {
		return false, fmt.Sprintf("indexer request: %v", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return false, fmt.Sprintf("indexer unreachable: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusBadRequest {
		return false, fmt.Sprintf("indexer returned %d", resp.StatusCode)
	}
	return true, ""
}

func (c *Checker) probeObjectStore(ctx context.Context) (bool, string) {
	_, err := c.s3.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(c.options.ObjectBucket)})
	if err != nil {
		return false, fmt.Sprintf("object store unreachable: %v", err)
	}
	return true, ""
}

// blockMetadata is the subset of the indexer's per-block metadata response
// this probe needs: a referenced-by-milestone-index field that is absent (or
// zero) until the block has been picked up by a milestone.
type blockMetadata struct {
	ReferencedByMilestoneIndex uint32 `json:"referencedByMilestoneIndex"`
}

// MilestoneReferenced reports whether link has already been referenced by a
// milestone on the ledger, per the indexer's block-metadata endpoint. A
// confirmation producer consults this before deciding a consuming sensor may
// act on the confirmation immediately (see queue.Element.NeedsToWait); any
// failure to reach the indexer or parse its response is treated as
// not-yet-referenced, the conservative choice that only delays delivery
// rather than risking a sensor acting on an unconfirmed write.
func (c *Checker) MilestoneReferenced(ctx context.Context, link string) bool {
	if link == "" {
		return true
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.options.IndexerURL+"/block/"+link+"/metadata", nil)
	if err != nil {
		return false
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return false
	}
	var meta blockMetadata
	if err := json.NewDecoder(resp.Body).Decode(&meta); err != nil {
		return false
	}
	return meta.ReferencedByMilestoneIndex > 0
}
