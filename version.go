package bonsai

// Version is the release version, overridden at build time with
// -ldflags "-X github.com/CentralLabFacilities/bonsai-sub000.Version=v1.2.3".
var Version = "dev"
