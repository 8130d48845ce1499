package store

import (
	"strings"

	"github.com/google/uuid"
)

// namespace for deterministic collection ids.
var namespace = uuid.MustParse("3e0b5c52-5d7e-4b4f-9a36-0c3f0f7a1d21")

func v5(ns uuid.UUID, name string) uuid.UUID {
	return uuid.NewSHA1(ns, []byte(name))
}

// CollectionID is stable for a project and collection name, so that every
// process opening the same collection agrees on its id.
func CollectionID(project, name string) uuid.UUID {
	canon := strings.ToLower(strings.TrimSpace(project)) + "/" + strings.TrimSpace(name)
	return v5(namespace, "collection:"+canon)
}
