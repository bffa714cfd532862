package api

import (
	"encoding/json"
	"fmt"
	"net/url"
)

const (
	// BaseURL is the base URL for the GraphQL API
	BaseURL = "https://x.com/i/api/graphql"

	// UserByScreenNameQueryID resolves a screen name to a user id
	UserByScreenNameQueryID = "G3KGOASz96M-Qu0nwmGXNg"

	// UserTweetsAndRepliesQueryID pages a user timeline including replies
	UserTweetsAndRepliesQueryID = "vMkJyzx1wdmvOeeNG0n6Wg"

	// ListLatestTweetsQueryID pages a list timeline, newest first
	ListLatestTweetsQueryID = "HjsWc-nwwHKYwHenbHm-tw"

	// TweetDetailQueryID fetches a conversation around one post
	TweetDetailQueryID = "xOhkmRac04YFZmOzU9PJHg"

	// DefaultPageSize is the number of posts requested per page
	DefaultPageSize = 40
)

// featureFlags are mandatory on GraphQL calls; the server rejects
// requests that omit them.
var featureFlags = map[string]bool{
	"responsive_web_graphql_exclude_directive_enabled":                        true,
	"responsive_web_graphql_timeline_navigation_enabled":                      true,
	"responsive_web_graphql_skip_user_profile_image_extensions_enabled":       false,
	"verified_phone_label_enabled":                                            false,
	"creator_subscriptions_tweet_preview_api_enabled":                         true,
	"longform_notetweets_consumption_enabled":                                 true,
	"longform_notetweets_rich_text_read_enabled":                              true,
	"longform_notetweets_inline_media_enabled":                                true,
	"tweet_awards_web_tipping_enabled":                                        false,
	"freedom_of_speech_not_reach_fetch_enabled":                               true,
	"standardized_nudges_misinfo":                                             true,
	"tweet_with_visibility_results_prefer_gql_limited_actions_policy_enabled": true,
	"responsive_web_twitter_article_tweet_consumption_enabled":                false,
	"responsive_web_media_download_video_enabled":                             false,
	"responsive_web_enhance_cards_enabled":                                    false,
	"view_counts_everywhere_api_enabled":                                      true,
	"communities_web_enable_tweet_community_results_fetch":                    true,
	"c9s_tweet_anatomy_moderator_badge_enabled":                               true,
	"rweb_video_timestamps_enabled":                                           true,
}

func graphqlURL(base, queryID, operation string, variables map[string]interface{}) string {
	vars, _ := json.Marshal(variables)
	features, _ := json.Marshal(featureFlags)

	params := url.Values{}
	params.Set("variables", string(vars))
	params.Set("features", string(features))

	return fmt.Sprintf("%s/%s/%s?%s", base, queryID, operation, params.Encode())
}

// UserByScreenNameURL builds the screen-name resolution URL
func UserByScreenNameURL(base, screenName string) string {
	return graphqlURL(base, UserByScreenNameQueryID, "UserByScreenName", map[string]interface{}{
		"screen_name":              screenName,
		"withSafetyModeUserFields": true,
	})
}

// UserTweetsURL builds a user-timeline page URL
func UserTweetsURL(base, userID, cursor string) string {
	variables := map[string]interface{}{
		"userId":                 userID,
		"count":                  DefaultPageSize,
		"includePromotedContent": false,
		"withCommunity":          true,
		"withVoice":              true,
		"withV2Timeline":         true,
	}
	if cursor != "" {
		variables["cursor"] = cursor
	}
	return graphqlURL(base, UserTweetsAndRepliesQueryID, "UserTweetsAndReplies", variables)
}

// ListTweetsURL builds a list-timeline page URL
func ListTweetsURL(base, listID, cursor string) string {
	variables := map[string]interface{}{
		"listId": listID,
		"count":  DefaultPageSize,
	}
	if cursor != "" {
		variables["cursor"] = cursor
	}
	return graphqlURL(base, ListLatestTweetsQueryID, "ListLatestTweetsTimeline", variables)
}

// TweetDetailURL builds a conversation fetch URL
func TweetDetailURL(base, postID, cursor string) string {
	variables := map[string]interface{}{
		"focalTweetId":                           postID,
		"with_rux_injections":                    false,
		"includePromotedContent":                 false,
		"withCommunity":                          true,
		"withQuickPromoteEligibilityTweetFields": false,
		"withBirdwatchNotes":                     false,
		"withVoice":                              true,
		"withV2Timeline":                         true,
	}
	if cursor != "" {
		variables["cursor"] = cursor
	}
	return graphqlURL(base, TweetDetailQueryID, "TweetDetail", variables)
}
