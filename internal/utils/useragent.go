package utils

import (
	ua "github.com/mssola/user_agent"
)

// ClientInfo is the parsed User-Agent of an API caller
type ClientInfo struct {
	Browser string `json:"browser"`
	OS      string `json:"os"`
	Mobile  bool   `json:"mobile"`
	IsBot   bool   `json:"is_bot"`
}

// ParseUserAgent extracts browser, OS and bot flag from a User-Agent string
func ParseUserAgent(userAgent string) ClientInfo {
	if userAgent == "" || userAgent == "Unknown" {
		return ClientInfo{Browser: "Unknown", OS: "Unknown"}
	}

	parser := ua.New(userAgent)
	info := ClientInfo{
		Browser: "Unknown",
		OS:      "Unknown",
		Mobile:  parser.Mobile(),
		IsBot:   parser.Bot(),
	}

	if name, version := parser.Browser(); name != "" {
		info.Browser = name
		if version != "" {
			info.Browser += " " + version
		}
	}

	if os := parser.OSInfo(); os.Name != "" {
		info.OS = os.Name
		if os.Version != "" {
			info.OS += " " + os.Version
		}
	}

	return info
}
