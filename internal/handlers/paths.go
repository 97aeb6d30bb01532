package handlers

// PagePrefix is the URL prefix of every per-page fragment route.
const PagePrefix = "/p"

func pagePath(pageID string) string {
	return PagePrefix + "/" + pageID
}

func blockPath(pageID, blockID string) string {
	return pagePath(pageID) + "/blocks/" + blockID
}

func previewURL(pageID string) string {
	return pagePath(pageID) + "/preview"
}

func closeURL(pageID string) string {
	return previewURL(pageID) + "/close"
}
