// Copyright 2025 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package rundata

import (
	"errors"
	"fmt"
	"os"
	"runtime/debug"
	"time"

	gitv5 "github.com/go-git/go-git/v5"
	"github.com/golang/glog"
)

// buildInfo populates the properties from debug.ReadBuildInfo.
func buildInfo(m map[string]string) {
	bi, ok := debug.ReadBuildInfo()
	if !ok {
		glog.Warning("debug.ReadBuildInfo() returned no BuildInfo.")
		return
	}
	m["build.go_version"] = bi.GoVersion
	m["build.path"] = bi.Path
	m["build.main.path"] = bi.Main.Path
	m["build.main.version"] = bi.Main.Version
	m["build.main.sum"] = bi.Main.Sum

	for _, setting := range bi.Settings {
		m[fmt.Sprintf("build.settings.%s", setting.Key)] = setting.Value
	}
}

// gitOrigin returns the fetch URL of the "origin" remote.
func gitOrigin(repo *gitv5.Repository) (string, error) {
	origin, err := repo.Remote("origin")
	if err != nil {
		return "", err
	}
	config := origin.Config()
	if len(config.URLs) == 0 {
		return "", errors.New("origin has no URLs")
	}
	return config.URLs[0], nil // First one is always used for fetching.
}

// gitHead returns the commit hash and the commit timestamp at HEAD.
func gitHead(repo *gitv5.Repository) (string, time.Time, error) {
	var zero time.Time
	head, err := repo.Head()
	if err != nil {
		return "", zero, err
	}
	commit, err := repo.CommitObject(head.Hash())
	if err != nil {
		return "", zero, err
	}
	return commit.Hash.String(), commit.Committer.When, nil
}

// gitInfoWithRepo populates the git properties from the given repo.
func gitInfoWithRepo(m map[string]string, repo *gitv5.Repository) {
	wt, err := repo.Worktree()
	if err != nil {
		return
	}

	if origin, err := gitOrigin(repo); err != nil {
		glog.Warningf("Could not get git origin URL: %v", err)
	} else {
		m["git.origin"] = origin
	}

	if commitHash, commitTime, err := gitHead(repo); err != nil {
		glog.Warningf("Could not get git HEAD: %v", err)
	} else {
		m["git.commit"] = commitHash
		m["git.commit_timestamp"] = fmt.Sprint(commitTime.Unix())
	}

	if status, err := wt.Status(); err != nil {
		glog.Warningf("Could not get git status: %v", err)
	} else {
		m["git.status"] = status.String()
		if status.IsClean() {
			m["git.clean"] = "true"
		} else {
			m["git.clean"] = "false"
		}
	}
}

// gitInfo populates the git properties from the harness working
// directory, when it is inside a git checkout.
func gitInfo(m map[string]string) {
	cwd, err := os.Getwd()
	if err != nil {
		return
	}
	repo, err := gitv5.PlainOpenWithOptions(cwd, &gitv5.PlainOpenOptions{
		DetectDotGit: true,
	})
	if err != nil {
		return
	}
	gitInfoWithRepo(m, repo)
}

var timeBegin = time.Now()

// timing stamps the time properties.  time.begin is fixed at process
// start so repeated collections bracket the whole run.
func timing(m map[string]string) {
	m["time.begin"] = fmt.Sprint(timeBegin.Unix())
	m["time.end"] = fmt.Sprint(time.Now().Unix())
}

// local populates the properties that can be collected without a
// testbed reservation.
func local(m map[string]string) {
	buildInfo(m)
	gitInfo(m)
	timing(m)
}
