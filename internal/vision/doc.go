// Package vision finds reference images on a screen snapshot.
//
// Matching uses the normalized correlation coefficient over the three
// colour channels (the measure OpenCV calls TM_CCOEFF_NORMED). For every
// placement of the template inside the snapshot the score is
//
//	Σc Σxy T'c(x,y)·I'c(x,y) / sqrt(Σc Σxy T'c² · Σc Σxy I'c²)
//
// where T' and I' are the template and the covered window with their
// per-channel means removed. Scores lie in [-1, 1]. A window (or template)
// with no variance scores 0.
//
// Templates are resolved by a TemplateStore, which maps identifiers such
// as "menu/ok" to files under the assets directory and caches the decoded
// images.
package vision
