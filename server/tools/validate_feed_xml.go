package tools

import (
	"github.com/cockroachdb/errors"
	mcp "github.com/metoro-io/mcp-golang"
	"go.uber.org/zap"

	"github.com/cnosuke/feed-audit/types"
)

// ValidateFeedXMLArgs - Arguments for validate_feed_xml tool
type ValidateFeedXMLArgs struct {
	FeedURL string `json:"feed_url" jsonschema:"description=URL the document is published at; offer urls and pictures must share its domain,required=true"`
	XML     string `json:"xml" jsonschema:"description=Feed document to validate,required=true"`
	Owner   string `json:"owner,omitempty" jsonschema:"description=Owner name used in the report"`
}

// DocumentValidator defines the interface for validating a feed document without fetching it
type DocumentValidator interface {
	ValidateXML(owner, feedURL, content string) types.FeedReport
}

// RegisterValidateFeedXMLTool - Register the validate_feed_xml tool
func RegisterValidateFeedXMLTool(mcpServer *mcp.Server, validator DocumentValidator) error {
	zap.S().Debugw("registering validate_feed_xml tool")
	err := mcpServer.RegisterTool("validate_feed_xml",
		"Validates the offers of a feed document passed inline, without fetching anything",
		validateFeedXMLHandler(validator))
	if err != nil {
		zap.S().Errorw("failed to register validate_feed_xml tool", "error", err)
		return errors.Wrap(err, "failed to register validate_feed_xml tool")
	}
	return nil
}

func validateFeedXMLHandler(validator DocumentValidator) func(args ValidateFeedXMLArgs) (*mcp.ToolResponse, error) {
	return func(args ValidateFeedXMLArgs) (*mcp.ToolResponse, error) {
		zap.S().Infow("executing validate_feed_xml", "feed_url", args.FeedURL, "bytes", len(args.XML))

		if args.FeedURL == "" {
			return nil, errors.New("feed_url is required")
		}
		if args.XML == "" {
			return nil, errors.New("xml is required")
		}

		report := validator.ValidateXML(args.Owner, args.FeedURL, args.XML)
		if report.Invalid == nil {
			report.Invalid = []types.OfferIssues{}
		}
		return jsonResponse(report)
	}
}
