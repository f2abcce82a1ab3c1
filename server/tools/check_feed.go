package tools

import (
	"context"
	"encoding/json"

	"github.com/cockroachdb/errors"
	mcp "github.com/metoro-io/mcp-golang"
	"go.uber.org/zap"

	"github.com/cnosuke/feed-audit/alert"
	"github.com/cnosuke/feed-audit/auditor"
	"github.com/cnosuke/feed-audit/types"
)

// CheckFeedArgs - Arguments for check_feed tool
type CheckFeedArgs struct {
	URL   string `json:"url" jsonschema:"description=Feed URL to audit. A feed.xml index is expanded into its sub-feeds,required=true"`
	Owner string `json:"owner,omitempty" jsonschema:"description=Owner name used in the report"`
}

// CheckFeedResponse - Result of the check_feed tool
type CheckFeedResponse struct {
	auditor.FeedResult
	Failures []types.FetchFailure `json:"failures"`
	Invalid  []types.OfferIssues  `json:"invalid_offers"`
}

// FeedChecker defines the interface for auditing a single feed
type FeedChecker interface {
	Check(ctx context.Context, owner, feedURL string) (auditor.FeedResult, *alert.Collector, error)
}

// RegisterCheckFeedTool - Register the check_feed tool
func RegisterCheckFeedTool(mcpServer *mcp.Server, checker FeedChecker) error {
	zap.S().Debugw("registering check_feed tool")
	err := mcpServer.RegisterTool("check_feed",
		"Fetches a product feed with its sub-feeds and validates every offer (url and picture domain, name, price, oldprice)",
		checkFeedHandler(checker))
	if err != nil {
		zap.S().Errorw("failed to register check_feed tool", "error", err)
		return errors.Wrap(err, "failed to register check_feed tool")
	}
	return nil
}

func checkFeedHandler(checker FeedChecker) func(args CheckFeedArgs) (*mcp.ToolResponse, error) {
	return func(args CheckFeedArgs) (*mcp.ToolResponse, error) {
		zap.S().Infow("executing check_feed", "url", args.URL, "owner", args.Owner)

		if args.URL == "" {
			return nil, errors.New("URL is required")
		}

		res, collector, err := checker.Check(context.Background(), args.Owner, args.URL)
		if err != nil {
			zap.S().Errorw("failed to check feed", "url", args.URL, "error", err)
			return nil, errors.Wrap(err, "failed to check feed")
		}

		response := CheckFeedResponse{
			FeedResult: res,
			Failures:   collector.Failures(),
			Invalid:    []types.OfferIssues{},
		}
		if response.Failures == nil {
			response.Failures = []types.FetchFailure{}
		}
		for _, report := range collector.Reports() {
			response.Invalid = append(response.Invalid, report.Invalid...)
		}

		return jsonResponse(response)
	}
}

func jsonResponse(v any) (*mcp.ToolResponse, error) {
	data, err := json.Marshal(v)
	if err != nil {
		zap.S().Errorw("failed to marshal response to JSON", "error", err)
		return nil, errors.Wrap(err, "failed to marshal response to JSON")
	}
	return mcp.NewToolResponse(mcp.NewTextContent(string(data))), nil
}
