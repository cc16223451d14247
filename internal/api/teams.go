package api

import (
	"github.com/gin-gonic/gin"

	"roster/internal/roster"
)

// POST /api/v1/teams; an optional "players" array is created with the team.
func CreateTeamHandler(teams *roster.TeamService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var in roster.CreateTeamInput
		if err := bindJSON(c, &in); err != nil {
			fail(c, err)
			return
		}
		team, err := teams.CreateTeamWithPlayers(c.Request.Context(), in.ToRecord(), in.PlayerRecords())
		if err != nil {
			fail(c, err)
			return
		}
		sendCreated(c, gin.H{"team": team})
	}
}

// GET /api/v1/teams/:id
func GetTeamHandler(teams *roster.TeamService) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := idParam(c)
		if err != nil {
			fail(c, err)
			return
		}
		team, err := teams.GetTeamWithPlayers(c.Request.Context(), id)
		if err != nil {
			fail(c, err)
			return
		}
		sendSuccess(c, gin.H{"team": team})
	}
}

// GET /api/v1/teams/:id/stats
func TeamStatsHandler(teams *roster.TeamService) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := idParam(c)
		if err != nil {
			fail(c, err)
			return
		}
		stats, err := teams.CalculateTeamStats(c.Request.Context(), id)
		if err != nil {
			fail(c, err)
			return
		}
		sendSuccess(c, gin.H{"stats": stats})
	}
}

// GET /api/v1/teams/:id/salary
func TeamSalaryHandler(teams *roster.TeamService) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := idParam(c)
		if err != nil {
			fail(c, err)
			return
		}
		total, err := teams.CalculateTeamSalary(c.Request.Context(), id)
		if err != nil {
			fail(c, err)
			return
		}
		sendSuccess(c, gin.H{"totalSalary": total})
	}
}
