package service

import "strings"

// DeviceNameFromUserAgent infers a display name from the registering client's
// User-Agent. Order matters: iOS tokens also contain "Mac".
func DeviceNameFromUserAgent(userAgent string) string {
	switch {
	case userAgent == "":
		return "Unknown Device"
	case strings.Contains(userAgent, "iPhone"), strings.Contains(userAgent, "iPad"):
		return "iOS App"
	case strings.Contains(userAgent, "Android"):
		return "Android"
	case strings.Contains(userAgent, "Mac"):
		return "Mac Browser"
	case strings.Contains(userAgent, "Windows"):
		return "Windows Browser"
	case strings.Contains(userAgent, "Linux"):
		return "Linux Browser"
	default:
		return "Web Browser"
	}
}
