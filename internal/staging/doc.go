// Package staging reclaims disk space under the artifact root.
//
// Jobs work in <root>/.work/job-N until their content key is known, and
// interrupted jobs can leave those scratch directories behind. Content key
// directories outlive their jobs when jobs are removed from the queue. The
// helpers here remove both once they are older than a cutoff.
package staging
