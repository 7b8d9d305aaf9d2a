// Package savelink builds signed "save to wallet" URLs for the second wallet
// platform, which needs no manifest or detached signature: the link itself is
// an RS256 JWT naming the object and class to save.
package savelink
