// Package matchmaking buffers players waiting for a session and partitions
// them into groups on each tick.
//
// Match formation, per tick:
//  1. Sort waiting entries by rating (ties by join time).
//  2. Scan contiguous windows of MaxPlayers. Accept a window when its rating
//     spread is within FairnessThreshold, or when any member has waited longer
//     than MaxWait/2 (bounds latency for outliers).
//  3. For each still-unmatched entry, pair it with its nearest-rated
//     unmatched neighbours to form groups of MinPlayers.
//  4. Remove every matched entry in one pass, then evict entries that waited
//     longer than MaxWait.
//
// The rating is a local fairness heuristic derived from historical wins and
// games. It is not a skill rating of record.
package matchmaking
